// Package gitsource keeps local checkouts of git card sources up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// ErrBadURL is returned for repository URLs that cannot be mapped to a
// checkout directory.
var ErrBadURL = errors.New("unsupported git url")

// Syncer clones or pulls repositories below a base directory.
type Syncer struct {
	baseDir string
	log     *zap.Logger
}

// New creates a Syncer that keeps checkouts under baseDir.
func New(baseDir string, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{baseDir: baseDir, log: log}
}

// Sync clones the repository if it has no checkout yet, or pulls the
// latest changes if it does. It returns the checkout directory.
func (s *Syncer) Sync(ctx context.Context, repoURL string) (string, error) {
	localPath, err := LocalPath(s.baseDir, repoURL)
	if err != nil {
		return "", err
	}
	log := s.log.With(zap.String("url", repoURL), zap.String("path", localPath))

	_, err = os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		log.Info("cloning repository")
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return "", fmt.Errorf("create checkout parent: %w", err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:   repoURL,
			Depth: 1,
		})
		if err != nil {
			return "", fmt.Errorf("clone %s: %w", repoURL, err)
		}
	case err == nil:
		log.Info("pulling repository")
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return "", fmt.Errorf("open repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("worktree of %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return "", fmt.Errorf("pull %s: %w", localPath, err)
		}
	default:
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}
	return localPath, nil
}

// LocalPath maps a repository URL to its checkout directory, for example
// https://github.com/a/b.git and git@github.com:a/b.git both become
// <baseDir>/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	var host, repoPath string

	u, err := url.Parse(repoURL)
	if err == nil && u.Host != "" && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh") {
		host, repoPath = u.Hostname(), u.Path
	} else if at := strings.Index(repoURL, "@"); at >= 0 {
		hostPart, pathPart, ok := strings.Cut(repoURL[at+1:], ":")
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrBadURL, repoURL)
		}
		host, repoPath = hostPart, pathPart
	} else {
		return "", fmt.Errorf("%w: %s", ErrBadURL, repoURL)
	}

	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if host == "" || repoPath == "" || strings.Contains(repoPath, "..") {
		return "", fmt.Errorf("%w: %s", ErrBadURL, repoURL)
	}
	return filepath.Join(baseDir, host, filepath.FromSlash(repoPath)), nil
}
