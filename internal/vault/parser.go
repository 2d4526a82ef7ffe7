package vault

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var inlineTagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)

// ParseNote builds a Note from raw markdown content. Frontmatter is a YAML
// block delimited by `---` lines at the top of the file; tags come from the
// frontmatter `tags` field plus inline #tags in the body.
func ParseNote(notePath string, content []byte, modified time.Time) (Note, error) {
	folder, name := splitPath(notePath)
	n := Note{
		Path:       notePath,
		Folder:     folder,
		Name:       name,
		ModifiedAt: modified,
		CreatedAt:  modified,
	}

	front, body := splitFrontmatter(string(content))
	if front != "" {
		fm := map[string]any{}
		if err := yaml.Unmarshal([]byte(front), &fm); err != nil {
			return Note{}, fmt.Errorf("parsing frontmatter of %s: %w", notePath, err)
		}
		n.Frontmatter = fm
		n.Tags = frontmatterTags(fm)
		if created, ok := frontmatterTime(fm, "created"); ok {
			n.CreatedAt = created
		}
	}

	for _, m := range inlineTagRe.FindAllStringSubmatch(body, -1) {
		tag := m[1]
		if !n.HasTag(tag) {
			n.Tags = append(n.Tags, tag)
		}
	}

	n.ContentHash = HashBody(body)
	return n, nil
}

// splitFrontmatter separates the YAML frontmatter block from the body.
// Returns ("", content) when no frontmatter is present.
func splitFrontmatter(content string) (front, body string) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", normalized
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", normalized
	}
	front = rest[:end]
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return front, body
}

// frontmatterTags reads the tags field, accepting both a list and a single
// string, and stripping any leading '#'.
func frontmatterTags(fm map[string]any) []string {
	raw, ok := fm["tags"]
	if !ok {
		raw, ok = fm["tag"]
	}
	if !ok {
		return nil
	}

	var tags []string
	add := func(v any) {
		s := strings.TrimPrefix(strings.TrimSpace(fmt.Sprint(v)), "#")
		if s != "" {
			tags = append(tags, s)
		}
	}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			add(item)
		}
	default:
		add(v)
	}
	return tags
}

func frontmatterTime(fm map[string]any, key string) (time.Time, bool) {
	raw, ok := fm[key]
	if !ok {
		return time.Time{}, false
	}
	if t, ok := raw.(time.Time); ok {
		return t, true
	}
	s := strings.TrimSpace(fmt.Sprint(raw))
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
