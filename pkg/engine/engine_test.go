package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forge/pkg/object"
	"forge/pkg/repo"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(filepath.Join(t.TempDir(), "repos"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestCreateListDeleteRepository(t *testing.T) {
	e := testEngine(t)

	if err := e.CreateRepository("alpha", "main"); err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if err := e.CreateRepository("beta", "trunk"); err != nil {
		t.Fatalf("create beta: %v", err)
	}

	names, err := e.ListRepositories()
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("repos = %v", names)
	}

	r, err := e.OpenRepository("beta")
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	branch, err := r.DefaultBranch()
	if err != nil || branch != "trunk" {
		t.Fatalf("default branch = %q err=%v", branch, err)
	}

	if err := e.DeleteRepository("alpha"); err != nil {
		t.Fatalf("delete alpha: %v", err)
	}
	if err := e.DeleteRepository("alpha"); !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("double delete: err = %v, want ErrRepoNotFound", err)
	}
	names, _ = e.ListRepositories()
	if len(names) != 1 || names[0] != "beta" {
		t.Fatalf("repos after delete = %v", names)
	}
}

func TestCreateRepositoryDuplicate(t *testing.T) {
	e := testEngine(t)
	if err := e.CreateRepository("dup", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.CreateRepository("dup", ""); !errors.Is(err, ErrRepoExists) {
		t.Fatalf("duplicate create: err = %v, want ErrRepoExists", err)
	}
}

func TestCreateRepositoryLeavesNothingOnFailure(t *testing.T) {
	e := testEngine(t)
	if err := e.CreateRepository("taken", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = e.CreateRepository("taken", "")

	entries, err := os.ReadDir(e.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "taken" {
			t.Fatalf("leftover entry %q after failed create", entry.Name())
		}
	}
}

func TestRenameIntoPlaceLosingRaceReportsExists(t *testing.T) {
	e := testEngine(t)
	if err := e.CreateRepository("taken", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A loser's staged repository renamed onto the winner's populated
	// directory must classify as ErrRepoExists, not a generic failure.
	stage := filepath.Join(t.TempDir(), "taken")
	if _, err := repo.Init(stage, "taken", "main"); err != nil {
		t.Fatalf("stage repo: %v", err)
	}
	if err := renameIntoPlace(stage, filepath.Join(e.Root(), "taken")); !errors.Is(err, ErrRepoExists) {
		t.Fatalf("err = %v, want ErrRepoExists", err)
	}
}

func TestValidateRepoName(t *testing.T) {
	e := testEngine(t)
	for _, name := range []string{
		"", "a/b", `a\b`, "..", "../escape", ".hidden", "spa ce", "sémantics",
	} {
		if err := e.CreateRepository(name, ""); !errors.Is(err, ErrInvalidRepoName) {
			t.Fatalf("name %q: err = %v, want ErrInvalidRepoName", name, err)
		}
	}
	for _, name := range []string{"ok", "with-dash", "with_underscore", "v1.2", "MixedCase9"} {
		if err := e.CreateRepository(name, ""); err != nil {
			t.Fatalf("name %q rejected: %v", name, err)
		}
	}
}

func TestOpenRepositoryMissing(t *testing.T) {
	e := testEngine(t)
	if _, err := e.OpenRepository("ghost"); !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("err = %v, want ErrRepoNotFound", err)
	}
}

// seedHistory pushes two commits onto a branch straight through the repo
// layer and returns their hashes.
func seedHistory(t *testing.T, e *Engine, repoName, branch string) (c1, c2 object.Hash) {
	t.Helper()

	r, err := e.OpenRepository(repoName)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}

	write := func(files map[string]string, parents []object.Hash, ts int64) object.Hash {
		entries := make([]repo.TreeFileEntry, 0, len(files))
		for p, content := range files {
			h, err := r.Store.Write(object.TypeBlob, []byte(content))
			if err != nil {
				t.Fatalf("write blob: %v", err)
			}
			entries = append(entries, repo.TreeFileEntry{Path: p, Hash: h, Mode: object.TreeModeFile})
		}
		tree, err := r.BuildTreeFromEntries(entries)
		if err != nil {
			t.Fatalf("build tree: %v", err)
		}
		commit, err := r.Store.WriteCommit(&object.CommitObj{
			TreeHash:  tree,
			Parents:   parents,
			Author:    "test",
			Committer: "test",
			Timestamp: ts,
			Message:   "seed",
		})
		if err != nil {
			t.Fatalf("write commit: %v", err)
		}
		old, err := r.ResolveRef(branch)
		if err != nil {
			old = ""
		}
		if err := r.CompareAndSwapRef(branch, old, commit); err != nil {
			t.Fatalf("move ref: %v", err)
		}
		return commit
	}

	c1 = write(map[string]string{"a.txt": "one", "dir/b.txt": "two"}, nil, 100)
	c2 = write(map[string]string{"a.txt": "one changed", "dir/b.txt": "two"}, []object.Hash{c1}, 200)
	return c1, c2
}

func TestEngineViews(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t)
	if err := e.CreateRepository("proj", "main"); err != nil {
		t.Fatalf("create: %v", err)
	}
	c1, c2 := seedHistory(t, e, "proj", "main")

	branches, err := e.ListBranches("proj")
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 1 || branches[0].Name != "main" || branches[0].Tip != c2 {
		t.Fatalf("branches = %+v", branches)
	}

	items, err := e.ListTree(ctx, "proj", "main", "")
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if len(items) != 2 || items[0].Name != "a.txt" || items[1].Name != "dir" || !items[1].Dir {
		t.Fatalf("tree = %+v", items)
	}

	// Listing by raw commit hash works too.
	items, err = e.ListTree(ctx, "proj", string(c1), "dir")
	if err != nil {
		t.Fatalf("ListTree by hash: %v", err)
	}
	if len(items) != 1 || items[0].Name != "b.txt" {
		t.Fatalf("dir tree = %+v", items)
	}

	log, err := e.CommitHistory(ctx, "proj", "main", 1, 10)
	if err != nil {
		t.Fatalf("CommitHistory: %v", err)
	}
	if len(log) != 2 || log[0].Hash != c2 || log[1].Hash != c1 {
		t.Fatalf("log = %+v", log)
	}

	changes, patch, err := e.DiffRefs(ctx, "proj", string(c1), string(c2))
	if err != nil {
		t.Fatalf("DiffRefs: %v", err)
	}
	if len(changes) != 1 || changes[0].Path != "a.txt" {
		t.Fatalf("changes = %+v", changes)
	}
	if patch == "" {
		t.Fatal("empty patch text")
	}
}
