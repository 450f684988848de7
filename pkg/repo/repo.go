// Package repo implements bare repositories: an object namespace plus a
// reference set, with the ref compare-and-swap as the only serialization
// point between concurrent writers.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"forge/pkg/object"
)

const commitCacheSize = 4096

// Repo is an opened bare repository.
type Repo struct {
	Name  string
	Dir   string
	Store *object.Store

	commitCache *lru.Cache[object.Hash, *object.CommitObj]
}

// Init creates a bare repository at dir with the given default branch. The
// directory must not already exist. The default branch starts unborn: HEAD
// names it but no ref exists until the first push or commit.
func Init(dir, name, defaultBranch string) (*Repo, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}
	if strings.TrimSpace(defaultBranch) == "" {
		defaultBranch = "main"
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "refs", "heads"),
		filepath.Join(dir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(dir, "HEAD")
	head := fmt.Sprintf("ref: refs/heads/%s\n", defaultBranch)
	if err := os.WriteFile(headPath, []byte(head), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	return newRepo(dir, name), nil
}

// Open opens an existing bare repository at dir.
func Open(dir, name string) (*Repo, error) {
	info, err := os.Stat(filepath.Join(dir, "objects"))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open %s: not a repository", dir)
	}
	return newRepo(dir, name), nil
}

func newRepo(dir, name string) *Repo {
	cache, _ := lru.New[object.Hash, *object.CommitObj](commitCacheSize)
	return &Repo{
		Name:        name,
		Dir:         dir,
		Store:       object.NewStore(dir),
		commitCache: cache,
	}
}

// DefaultBranch reads the symbolic HEAD and returns the branch it names.
func (r *Repo) DefaultBranch() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if !strings.HasPrefix(content, "ref: refs/heads/") {
		return "", fmt.Errorf("head: unexpected content %q", content)
	}
	return strings.TrimPrefix(content, "ref: refs/heads/"), nil
}

// readCommit reads a commit through the repository's LRU cache. Commits are
// immutable, so cached entries never go stale.
func (r *Repo) readCommit(h object.Hash) (*object.CommitObj, error) {
	if c, ok := r.commitCache.Get(h); ok {
		return c, nil
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return nil, err
	}
	r.commitCache.Add(h, c)
	return c, nil
}
