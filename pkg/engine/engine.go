// Package engine exposes the repository service: create, delete, and
// inspect repositories rooted under a single directory, plus the wire
// operations for clone, fetch, and push.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"forge/pkg/repo"
)

var (
	// ErrRepoNotFound means no repository with that name exists.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoExists means a repository with that name already exists.
	ErrRepoExists = errors.New("repository already exists")

	// ErrInvalidRepoName means the name contains path separators or other
	// rejected characters.
	ErrInvalidRepoName = errors.New("invalid repository name")
)

// Engine manages the repositories under a root directory. All methods are
// safe for concurrent use; ref compare-and-swap inside each repository is
// the only serialization point.
type Engine struct {
	root string
}

func New(root string) (*Engine, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("engine root: %w", err)
	}
	return &Engine{root: root}, nil
}

func (e *Engine) Root() string { return e.root }

// validateRepoName rejects anything that could escape the root directory
// or collide with internal temp names.
func validateRepoName(name string) error {
	if name == "" || len(name) > 255 {
		return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
		}
	}
	return nil
}

func (e *Engine) repoDir(name string) string {
	return filepath.Join(e.root, name)
}

// CreateRepository initializes a bare repository. Creation is atomic: the
// repository is built in a temp directory and renamed into place, so a
// failed create leaves nothing behind and a racing duplicate create loses
// cleanly.
func (e *Engine) CreateRepository(name, defaultBranch string) error {
	if err := validateRepoName(name); err != nil {
		return err
	}
	if _, err := os.Stat(e.repoDir(name)); err == nil {
		return fmt.Errorf("create %q: %w", name, ErrRepoExists)
	}

	tmp, err := os.MkdirTemp(e.root, ".create-")
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	defer os.RemoveAll(tmp)

	stageDir := filepath.Join(tmp, name)
	if _, err := repo.Init(stageDir, name, defaultBranch); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}

	if err := renameIntoPlace(stageDir, e.repoDir(name)); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	return nil
}

// renameIntoPlace moves a staged repository to its final path. When a
// racing create already populated the destination, rename fails with
// EEXIST or ENOTEMPTY depending on the platform; both mean the name is
// taken.
func renameIntoPlace(stage, dst string) error {
	err := os.Rename(stage, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrExist), errors.Is(err, syscall.ENOTEMPTY):
		return ErrRepoExists
	default:
		return err
	}
}

// DeleteRepository removes a repository and everything in it.
func (e *Engine) DeleteRepository(name string) error {
	if err := validateRepoName(name); err != nil {
		return err
	}
	dir := e.repoDir(name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %q: %w", name, ErrRepoNotFound)
		}
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

// ListRepositories returns the repository names under the root, sorted.
func (e *Engine) ListRepositories() ([]string, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// OpenRepository opens an existing repository by name.
func (e *Engine) OpenRepository(name string) (*repo.Repo, error) {
	if err := validateRepoName(name); err != nil {
		return nil, err
	}
	r, err := repo.Open(e.repoDir(name), name)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, ErrRepoNotFound)
	}
	return r, nil
}
