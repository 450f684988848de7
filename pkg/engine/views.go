package engine

import (
	"context"
	"fmt"

	"forge/pkg/diff"
	"forge/pkg/object"
	"forge/pkg/repo"
)

// Branch is one branch with its tip commit.
type Branch struct {
	Name string      `json:"name"`
	Tip  object.Hash `json:"tip"`
}

// ListBranches returns the branches of a repository, sorted by name.
func (e *Engine) ListBranches(name string) ([]Branch, error) {
	r, err := e.OpenRepository(name)
	if err != nil {
		return nil, err
	}
	refs, err := r.ListRefs("refs/heads/")
	if err != nil {
		return nil, err
	}
	branches := make([]Branch, 0, len(refs))
	for _, ref := range refs {
		branches = append(branches, Branch{
			Name: ref.Name[len("refs/heads/"):],
			Tip:  ref.Hash,
		})
	}
	return branches, nil
}

// TreeItem is one entry of a tree listing.
type TreeItem struct {
	Name string      `json:"name"`
	Mode string      `json:"mode"`
	Hash object.Hash `json:"hash"`
	Dir  bool        `json:"dir"`
}

// ListTree lists one directory level of the tree at a revision. rev is a
// branch name, full ref name, or commit hash; path is slash-separated and
// empty for the root.
func (e *Engine) ListTree(ctx context.Context, name, rev, path string) ([]TreeItem, error) {
	r, err := e.OpenRepository(name)
	if err != nil {
		return nil, err
	}
	commit, err := resolveRevision(r, rev)
	if err != nil {
		return nil, err
	}
	c, err := r.Store.ReadCommit(commit)
	if err != nil {
		return nil, err
	}
	entries, err := r.ListTree(c.TreeHash, path)
	if err != nil {
		return nil, err
	}
	items := make([]TreeItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, TreeItem{
			Name: entry.Name,
			Mode: entry.Mode,
			Hash: entry.Hash,
			Dir:  entry.IsDir(),
		})
	}
	return items, nil
}

// CommitHistory pages through a branch's history, newest first.
func (e *Engine) CommitHistory(ctx context.Context, name, branch string, page, perPage int) ([]repo.CommitSummary, error) {
	r, err := e.OpenRepository(name)
	if err != nil {
		return nil, err
	}
	return r.CommitHistory(ctx, branch, page, perPage)
}

// DiffRefs compares two revisions and returns the structured changes plus
// the rendered unified patch.
func (e *Engine) DiffRefs(ctx context.Context, name, base, head string) ([]diff.Change, string, error) {
	r, err := e.OpenRepository(name)
	if err != nil {
		return nil, "", err
	}
	baseCommit, err := resolveRevision(r, base)
	if err != nil {
		return nil, "", err
	}
	headCommit, err := resolveRevision(r, head)
	if err != nil {
		return nil, "", err
	}
	changes, err := r.DiffCommits(ctx, baseCommit, headCommit)
	if err != nil {
		return nil, "", err
	}
	return changes, diff.FormatPatch(changes), nil
}

// Merge merges head into base inside the named repository.
func (e *Engine) Merge(ctx context.Context, name, base, head, author, message string) (*repo.MergeResult, error) {
	r, err := e.OpenRepository(name)
	if err != nil {
		return nil, err
	}
	return r.Merge(ctx, base, head, author, message)
}

// resolveRevision resolves a branch name, full ref, or raw object hash to
// a commit hash, peeling annotated tags.
func resolveRevision(r *repo.Repo, rev string) (object.Hash, error) {
	if h, err := r.ResolveRef(rev); err == nil {
		return r.PeelToCommit(h)
	}
	h := object.Hash(rev)
	if object.ValidHash(h) && r.Store.Has(h) {
		return r.PeelToCommit(h)
	}
	return "", fmt.Errorf("resolve %q: %w", rev, repo.ErrRefNotFound)
}
