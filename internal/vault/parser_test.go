package vault

import (
	"reflect"
	"testing"
	"time"
)

func TestParseNote(t *testing.T) {
	modified := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("frontmatter tag list", func(t *testing.T) {
		content := "---\ntags:\n  - spanish\n  - lang/verbs\n---\nBody text.\n"
		n, err := ParseNote("spanish/verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !reflect.DeepEqual(n.Tags, []string{"spanish", "lang/verbs"}) {
			t.Errorf("expected tags from frontmatter, got %v", n.Tags)
		}
		if n.Folder != "spanish" || n.Name != "verbs" {
			t.Errorf("expected folder 'spanish' and name 'verbs', got %q %q", n.Folder, n.Name)
		}
	})

	t.Run("frontmatter tag as single string", func(t *testing.T) {
		content := "---\ntags: \"#spanish\"\n---\nBody.\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !reflect.DeepEqual(n.Tags, []string{"spanish"}) {
			t.Errorf("expected ['spanish'], got %v", n.Tags)
		}
	})

	t.Run("inline tags", func(t *testing.T) {
		content := "Learning #spanish and #lang/verbs today. Not a#tag though.\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !reflect.DeepEqual(n.Tags, []string{"spanish", "lang/verbs"}) {
			t.Errorf("expected inline tags, got %v", n.Tags)
		}
	})

	t.Run("inline tag deduplicates against frontmatter", func(t *testing.T) {
		content := "---\ntags: [spanish]\n---\nMore #spanish notes.\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !reflect.DeepEqual(n.Tags, []string{"spanish"}) {
			t.Errorf("expected a single 'spanish' tag, got %v", n.Tags)
		}
	})

	t.Run("created date from frontmatter", func(t *testing.T) {
		content := "---\ncreated: 2025-11-20\n---\nBody.\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		want := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
		if !n.CreatedAt.Equal(want) {
			t.Errorf("expected created %v, got %v", want, n.CreatedAt)
		}
	})

	t.Run("no frontmatter falls back to modified time", func(t *testing.T) {
		n, err := ParseNote("verbs.md", []byte("Just a body.\n"), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !n.CreatedAt.Equal(modified) {
			t.Errorf("expected created to default to modified, got %v", n.CreatedAt)
		}
		if n.Frontmatter != nil {
			t.Errorf("expected no frontmatter, got %v", n.Frontmatter)
		}
	})

	t.Run("unterminated frontmatter is body", func(t *testing.T) {
		content := "---\ntags: [spanish]\nNo closing fence.\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if len(n.Tags) != 0 {
			t.Errorf("expected no tags from an unterminated block, got %v", n.Tags)
		}
	})

	t.Run("invalid frontmatter yaml fails", func(t *testing.T) {
		content := "---\ntags: [unclosed\n---\nBody.\n"
		if _, err := ParseNote("verbs.md", []byte(content), modified); err == nil {
			t.Error("expected an error for invalid frontmatter")
		}
	})

	t.Run("crlf content", func(t *testing.T) {
		content := "---\r\ntags: [spanish]\r\n---\r\nBody.\r\n"
		n, err := ParseNote("verbs.md", []byte(content), modified)
		if err != nil {
			t.Fatalf("ParseNote: %v", err)
		}
		if !reflect.DeepEqual(n.Tags, []string{"spanish"}) {
			t.Errorf("expected tags despite CRLF endings, got %v", n.Tags)
		}
	})
}

func TestHashBody(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		if HashBody("Some note body") != HashBody("Some note body") {
			t.Error("expected identical bodies to hash identically")
		}
	})

	t.Run("normalization", func(t *testing.T) {
		if HashBody("  What is Go?\r\n") != HashBody("what is go?") {
			t.Error("expected case, whitespace and line-ending differences to hash identically")
		}
	})

	t.Run("different content", func(t *testing.T) {
		if HashBody("note one") == HashBody("note two") {
			t.Error("expected different bodies to hash differently")
		}
	})
}
