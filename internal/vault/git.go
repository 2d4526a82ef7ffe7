package vault

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
)

// SyncGit clones the repository at url into localPath, or pulls the latest
// changes if a checkout already exists, and returns a Dir vault over it.
func SyncGit(url, localPath string, log *slog.Logger) (*Dir, error) {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		log.Info("cloning vault repository", "url", url, "path", localPath)
		if _, err := git.PlainClone(localPath, false, &git.CloneOptions{URL: url}); err != nil {
			return nil, fmt.Errorf("cloning %s: %w", url, err)
		}
	case err == nil:
		log.Info("pulling vault repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return nil, fmt.Errorf("opening repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, fmt.Errorf("worktree at %s: %w", localPath, err)
		}
		if err := worktree.Pull(&git.PullOptions{RemoteName: "origin"}); err != nil && err != git.NoErrAlreadyUpToDate {
			return nil, fmt.Errorf("pulling %s: %w", localPath, err)
		}
	default:
		return nil, fmt.Errorf("checking %s: %w", localPath, err)
	}
	return NewDir(localPath)
}
