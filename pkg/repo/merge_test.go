package repo

import (
	"context"
	"testing"

	"forge/pkg/object"
)

func TestMergeAlreadyUpToDate(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	c1 := commitFiles(t, r, "main", nil, map[string]string{"a.txt": "1"}, 100, "c1")
	c2 := commitFiles(t, r, "main", []object.Hash{c1}, map[string]string{"a.txt": "2"}, 200, "c2")
	if err := r.CompareAndSwapRef("feature", "", c1); err != nil {
		t.Fatalf("seed feature: %v", err)
	}

	// feature's tip is already contained in main.
	res, err := r.Merge(ctx, "main", "feature", "test", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeFastForwarded {
		t.Fatalf("status = %v, want fast-forwarded", res.Status)
	}
	if res.CommitHash != c2 {
		t.Fatalf("commit = %s, want unchanged tip %s", res.CommitHash, c2)
	}
	tip, _ := r.ResolveRef("main")
	if tip != c2 {
		t.Fatalf("main moved to %s", tip)
	}
}

func TestMergeFastForwardMovesRefWithoutCommit(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	c1 := commitFiles(t, r, "main", nil, map[string]string{"a.txt": "1"}, 100, "c1")
	if err := r.CompareAndSwapRef("feature", "", c1); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	c2 := commitFiles(t, r, "feature", []object.Hash{c1}, map[string]string{"a.txt": "2"}, 200, "c2")

	res, err := r.Merge(ctx, "main", "feature", "test", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeFastForwarded {
		t.Fatalf("status = %v, want fast-forwarded", res.Status)
	}
	if res.CommitHash != c2 {
		t.Fatalf("commit = %s, want head tip %s", res.CommitHash, c2)
	}

	tip, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if tip != c2 {
		t.Fatalf("main = %s, want %s", tip, c2)
	}
	// No merge commit was created: the tip still has one parent.
	c, err := r.Store.ReadCommit(tip)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 {
		t.Fatalf("tip has %d parents after fast-forward", len(c.Parents))
	}
}

func TestMergeDisjointEditsClean(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	base := commitFiles(t, r, "main", nil,
		map[string]string{"a.txt": "base a", "b.txt": "base b"}, 100, "base")
	if err := r.CompareAndSwapRef("feature", "", base); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	mainTip := commitFiles(t, r, "main", []object.Hash{base},
		map[string]string{"a.txt": "main a", "b.txt": "base b"}, 200, "edit a")
	featTip := commitFiles(t, r, "feature", []object.Hash{base},
		map[string]string{"a.txt": "base a", "b.txt": "feature b", "c.txt": "new"}, 300, "edit b add c")

	res, err := r.Merge(ctx, "main", "feature", "test", "merge feature")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeMerged {
		t.Fatalf("status = %v (conflicts %v), want merged", res.Status, res.Conflicts)
	}

	mergeCommit, err := r.Store.ReadCommit(res.CommitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(mergeCommit.Parents) != 2 || mergeCommit.Parents[0] != mainTip || mergeCommit.Parents[1] != featTip {
		t.Fatalf("merge parents = %v, want [%s %s]", mergeCommit.Parents, mainTip, featTip)
	}

	flat, err := r.FlattenTree(ctx, mergeCommit.TreeHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}
	got := map[string]object.Hash{}
	for _, f := range flat {
		got[f.Path] = f.Hash
	}
	wantContent := map[string]string{"a.txt": "main a", "b.txt": "feature b", "c.txt": "new"}
	if len(got) != len(wantContent) {
		t.Fatalf("merged tree has %d files: %v", len(got), got)
	}
	for p, content := range wantContent {
		if got[p] != object.HashObject(object.TypeBlob, []byte(content)) {
			t.Fatalf("merged %s has wrong content", p)
		}
	}

	tip, _ := r.ResolveRef("main")
	if tip != res.CommitHash {
		t.Fatalf("main = %s, want merge commit %s", tip, res.CommitHash)
	}
}

func TestMergeConflictMutatesNothing(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	base := commitFiles(t, r, "main", nil, map[string]string{"x.txt": "base"}, 100, "base")
	if err := r.CompareAndSwapRef("feature", "", base); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	mainTip := commitFiles(t, r, "main", []object.Hash{base},
		map[string]string{"x.txt": "main version"}, 200, "main edit")
	commitFiles(t, r, "feature", []object.Hash{base},
		map[string]string{"x.txt": "feature version"}, 300, "feature edit")

	res, err := r.Merge(ctx, "main", "feature", "test", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeConflicted {
		t.Fatalf("status = %v, want conflicted", res.Status)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0] != "x.txt" {
		t.Fatalf("conflicts = %v, want [x.txt]", res.Conflicts)
	}

	tip, _ := r.ResolveRef("main")
	if tip != mainTip {
		t.Fatalf("main moved to %s on a conflicted merge", tip)
	}
}

func TestMergeDeleteVersusModifyConflicts(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	base := commitFiles(t, r, "main", nil,
		map[string]string{"keep.txt": "k", "victim.txt": "v"}, 100, "base")
	if err := r.CompareAndSwapRef("feature", "", base); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	// main deletes victim.txt, feature modifies it.
	commitFiles(t, r, "main", []object.Hash{base},
		map[string]string{"keep.txt": "k"}, 200, "delete victim")
	commitFiles(t, r, "feature", []object.Hash{base},
		map[string]string{"keep.txt": "k", "victim.txt": "edited"}, 300, "edit victim")

	res, err := r.Merge(ctx, "main", "feature", "test", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeConflicted {
		t.Fatalf("status = %v, want conflicted", res.Status)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0] != "victim.txt" {
		t.Fatalf("conflicts = %v, want [victim.txt]", res.Conflicts)
	}
}

func TestMergeIdenticalChangesBothSides(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	base := commitFiles(t, r, "main", nil, map[string]string{"f.txt": "old"}, 100, "base")
	if err := r.CompareAndSwapRef("feature", "", base); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	commitFiles(t, r, "main", []object.Hash{base}, map[string]string{"f.txt": "new"}, 200, "same edit")
	commitFiles(t, r, "feature", []object.Hash{base}, map[string]string{"f.txt": "new"}, 300, "same edit")

	res, err := r.Merge(ctx, "main", "feature", "test", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != MergeMerged {
		t.Fatalf("status = %v (conflicts %v), want merged", res.Status, res.Conflicts)
	}
}

func TestMergeRefMovedOnStaleFastForward(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	c1 := commitFiles(t, r, "main", nil, map[string]string{"a.txt": "1"}, 100, "c1")
	if err := r.CompareAndSwapRef("feature", "", c1); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	c2 := commitFiles(t, r, "feature", []object.Hash{c1}, map[string]string{"a.txt": "2"}, 200, "c2")

	// A concurrent push advances main after the tips were resolved.
	moved := commitFiles(t, r, "main", []object.Hash{c1}, map[string]string{"b.txt": "x"}, 250, "racer")

	res, err := r.mergeTips(ctx, "main", "feature", c1, c2, "test", "")
	if err != nil {
		t.Fatalf("mergeTips: %v", err)
	}
	if res.Status != MergeRefMoved {
		t.Fatalf("status = %v, want ref-moved", res.Status)
	}
	tip, _ := r.ResolveRef("main")
	if tip != moved {
		t.Fatalf("main = %s, want the racing tip %s", tip, moved)
	}
}

func TestMergeRefMovedOnStaleThreeWay(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	base := commitFiles(t, r, "main", nil, map[string]string{"a.txt": "base"}, 100, "base")
	if err := r.CompareAndSwapRef("feature", "", base); err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	mainTip := commitFiles(t, r, "main", []object.Hash{base},
		map[string]string{"a.txt": "base", "b.txt": "main"}, 200, "main edit")
	featTip := commitFiles(t, r, "feature", []object.Hash{base},
		map[string]string{"a.txt": "base", "c.txt": "feature"}, 300, "feature edit")

	moved := commitFiles(t, r, "main", []object.Hash{mainTip},
		map[string]string{"a.txt": "base", "b.txt": "main", "d.txt": "racer"}, 400, "racer")

	res, err := r.mergeTips(ctx, "main", "feature", mainTip, featTip, "test", "")
	if err != nil {
		t.Fatalf("mergeTips: %v", err)
	}
	if res.Status != MergeRefMoved {
		t.Fatalf("status = %v, want ref-moved", res.Status)
	}
	tip, _ := r.ResolveRef("main")
	if tip != moved {
		t.Fatalf("main = %s, want the racing tip %s", tip, moved)
	}
}

func TestFindMergeBase(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	root := commitFiles(t, r, "main", nil, map[string]string{"f": "0"}, 100, "root")
	left := commitFiles(t, r, "main", []object.Hash{root}, map[string]string{"f": "1"}, 200, "left")
	if err := r.CompareAndSwapRef("side", "", root); err != nil {
		t.Fatalf("seed side: %v", err)
	}
	right := commitFiles(t, r, "side", []object.Hash{root}, map[string]string{"g": "1"}, 250, "right")

	base, err := r.FindMergeBase(ctx, left, right)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if base != root {
		t.Fatalf("merge base = %s, want %s", base, root)
	}

	// Linear case: the ancestor itself.
	base, err = r.FindMergeBase(ctx, root, left)
	if err != nil {
		t.Fatalf("FindMergeBase linear: %v", err)
	}
	if base != root {
		t.Fatalf("linear merge base = %s, want %s", base, root)
	}
}

func TestIsAncestor(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	c1 := commitFiles(t, r, "main", nil, map[string]string{"f": "1"}, 100, "c1")
	c2 := commitFiles(t, r, "main", []object.Hash{c1}, map[string]string{"f": "2"}, 200, "c2")

	ok, err := r.IsAncestor(ctx, c1, c2)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !ok {
		t.Fatal("c1 not reported as ancestor of c2")
	}

	ok, err = r.IsAncestor(ctx, c2, c1)
	if err != nil {
		t.Fatalf("IsAncestor reverse: %v", err)
	}
	if ok {
		t.Fatal("c2 reported as ancestor of c1")
	}
}
