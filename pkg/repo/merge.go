package repo

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"forge/pkg/diff"
	"forge/pkg/object"
)

const maxMergeWalkSteps = 1_000_000

// MergeStatus classifies the outcome of a merge attempt.
type MergeStatus int

const (
	// MergeFastForwarded means the target ref was moved without creating a
	// commit, or was already up to date.
	MergeFastForwarded MergeStatus = iota
	// MergeMerged means a two-parent merge commit was created.
	MergeMerged
	// MergeConflicted means both sides changed the same paths and no ref
	// was mutated.
	MergeConflicted
	// MergeRefMoved means the target ref advanced concurrently and the
	// merge must be retried against the new tip.
	MergeRefMoved
)

func (s MergeStatus) String() string {
	switch s {
	case MergeFastForwarded:
		return "fast-forwarded"
	case MergeMerged:
		return "merged"
	case MergeConflicted:
		return "conflicted"
	case MergeRefMoved:
		return "ref-moved"
	default:
		return fmt.Sprintf("merge-status(%d)", int(s))
	}
}

// MergeResult reports how a merge concluded. CommitHash is the resulting
// tip for FastForwarded and Merged; Conflicts lists the contested paths
// for Conflicted.
type MergeResult struct {
	Status     MergeStatus
	CommitHash object.Hash
	Conflicts  []string
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant object.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}

	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []object.Hash{descendant}
	steps := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		cur := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxMergeWalkSteps {
			return false, fmt.Errorf("ancestor walk exceeded %d commits", maxMergeWalkSteps)
		}

		if cur == ancestor {
			return true, nil
		}
		commit, err := r.readCommit(cur)
		if err != nil {
			return false, err
		}
		for _, p := range commit.Parents {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false, nil
}

type mergeWalkItem struct {
	hash object.Hash
	ts   int64
}

type mergeWalkHeap []mergeWalkItem

func (h mergeWalkHeap) Len() int { return len(h) }

func (h mergeWalkHeap) Less(i, j int) bool {
	if h[i].ts != h[j].ts {
		return h[i].ts > h[j].ts
	}
	return h[i].hash < h[j].hash
}

func (h mergeWalkHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeWalkHeap) Push(x any) { *h = append(*h, x.(mergeWalkItem)) }

func (h *mergeWalkHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// FindMergeBase finds a common ancestor of two commits by walking both
// histories newest-first and stopping at the first commit seen from both
// sides. Returns the zero hash when the histories are unrelated.
func (r *Repo) FindMergeBase(ctx context.Context, a, b object.Hash) (object.Hash, error) {
	if a == b {
		return a, nil
	}

	ok, err := r.IsAncestor(ctx, a, b)
	if err != nil {
		return "", err
	}
	if ok {
		return a, nil
	}
	ok, err = r.IsAncestor(ctx, b, a)
	if err != nil {
		return "", err
	}
	if ok {
		return b, nil
	}

	commitA, err := r.readCommit(a)
	if err != nil {
		return "", err
	}
	commitB, err := r.readCommit(b)
	if err != nil {
		return "", err
	}

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}

	queueA := mergeWalkHeap{{hash: a, ts: commitA.Timestamp}}
	queueB := mergeWalkHeap{{hash: b, ts: commitB.Timestamp}}
	heap.Init(&queueA)
	heap.Init(&queueB)

	steps := 0
	for queueA.Len() > 0 || queueB.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		steps++
		if steps > maxMergeWalkSteps {
			return "", fmt.Errorf("merge base walk exceeded %d commits", maxMergeWalkSteps)
		}

		// Advance whichever frontier sits at the newer commit so the
		// first intersection is a latest common ancestor.
		fromA := false
		switch {
		case queueA.Len() == 0:
			fromA = false
		case queueB.Len() == 0:
			fromA = true
		default:
			topA, topB := queueA[0], queueB[0]
			if topA.ts > topB.ts {
				fromA = true
			} else if topB.ts > topA.ts {
				fromA = false
			} else {
				fromA = topA.hash <= topB.hash
			}
		}

		var item mergeWalkItem
		var mine, other map[object.Hash]struct{}
		if fromA {
			item = heap.Pop(&queueA).(mergeWalkItem)
			mine, other = visitedA, visitedB
		} else {
			item = heap.Pop(&queueB).(mergeWalkItem)
			mine, other = visitedB, visitedA
		}

		if _, seen := other[item.hash]; seen {
			return item.hash, nil
		}

		commit, err := r.readCommit(item.hash)
		if err != nil {
			return "", err
		}
		for _, p := range commit.Parents {
			if _, seen := mine[p]; seen {
				continue
			}
			parent, err := r.readCommit(p)
			if err != nil {
				return "", err
			}
			mine[p] = struct{}{}
			if _, seen := other[p]; seen {
				return p, nil
			}
			if fromA {
				heap.Push(&queueA, mergeWalkItem{hash: p, ts: parent.Timestamp})
			} else {
				heap.Push(&queueB, mergeWalkItem{hash: p, ts: parent.Timestamp})
			}
		}
	}

	return object.ZeroHash, nil
}

// Merge merges headBranch into baseBranch.
//
// Fast-forward cases never create a commit: when the base tip already
// contains the head tip the merge is a no-op, and when the head tip
// contains the base tip the base ref is simply advanced. Otherwise a
// three-way merge against the common ancestor combines both sides at the
// file level; paths changed differently on both sides conflict, and a
// conflicted merge mutates nothing. A clean merge writes a two-parent
// commit and moves the base ref with compare-and-swap, reporting
// MergeRefMoved if the ref advanced concurrently.
func (r *Repo) Merge(ctx context.Context, baseBranch, headBranch, author, message string) (*MergeResult, error) {
	baseTip, err := r.resolveBranchTip(baseBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", baseBranch, err)
	}
	headTip, err := r.resolveBranchTip(headBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", headBranch, err)
	}
	return r.mergeTips(ctx, baseBranch, headBranch, baseTip, headTip, author, message)
}

// mergeTips runs the merge from already-resolved tips. The base ref may
// advance concurrently after resolution; every ref move below guards on
// baseTip and reports MergeRefMoved when that observation is stale.
func (r *Repo) mergeTips(ctx context.Context, baseBranch, headBranch string, baseTip, headTip object.Hash, author, message string) (*MergeResult, error) {
	// Already up to date.
	ok, err := r.IsAncestor(ctx, headTip, baseTip)
	if err != nil {
		return nil, err
	}
	if ok {
		return &MergeResult{Status: MergeFastForwarded, CommitHash: baseTip}, nil
	}

	// Base is behind head on a linear path: move the ref, no commit.
	ok, err = r.IsAncestor(ctx, baseTip, headTip)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := r.CompareAndSwapRef(baseBranch, baseTip, headTip); err != nil {
			if errors.Is(err, ErrRefCASMismatch) {
				return &MergeResult{Status: MergeRefMoved}, nil
			}
			return nil, err
		}
		return &MergeResult{Status: MergeFastForwarded, CommitHash: headTip}, nil
	}

	mergeBase, err := r.FindMergeBase(ctx, baseTip, headTip)
	if err != nil {
		return nil, err
	}
	if mergeBase == object.ZeroHash {
		return nil, fmt.Errorf("merge %q into %q: histories are unrelated", headBranch, baseBranch)
	}

	baseFiles, err := r.flattenCommitTree(ctx, mergeBase)
	if err != nil {
		return nil, err
	}
	oursFiles, err := r.flattenCommitTree(ctx, baseTip)
	if err != nil {
		return nil, err
	}
	theirsFiles, err := r.flattenCommitTree(ctx, headTip)
	if err != nil {
		return nil, err
	}

	merged, conflicts := combineThreeWay(baseFiles, oursFiles, theirsFiles)
	if len(conflicts) > 0 {
		return &MergeResult{Status: MergeConflicted, Conflicts: conflicts}, nil
	}

	treeHash, err := r.BuildTreeFromEntries(merged)
	if err != nil {
		return nil, err
	}

	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", headBranch, baseBranch)
	}
	mergeCommit := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{baseTip, headTip},
		Author:    author,
		Committer: author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	commitHash, err := r.Store.WriteCommit(mergeCommit)
	if err != nil {
		return nil, err
	}

	if err := r.CompareAndSwapRef(baseBranch, baseTip, commitHash); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return &MergeResult{Status: MergeRefMoved}, nil
		}
		return nil, err
	}
	return &MergeResult{Status: MergeMerged, CommitHash: commitHash}, nil
}

func (r *Repo) resolveBranchTip(name string) (object.Hash, error) {
	h, err := r.ResolveRef(name)
	if err != nil {
		return "", err
	}
	return r.PeelToCommit(h)
}

func (r *Repo) flattenCommitTree(ctx context.Context, commitHash object.Hash) ([]TreeFileEntry, error) {
	commit, err := r.readCommit(commitHash)
	if err != nil {
		return nil, err
	}
	return r.FlattenTree(ctx, commit.TreeHash)
}

type mergeSide struct {
	entry   TreeFileEntry
	present bool
}

// combineThreeWay merges two flattened file listings against their common
// base at the file level. A path changed on one side takes that side's
// version; identical changes on both sides apply once; divergent changes,
// including delete against modify, conflict.
func combineThreeWay(base, ours, theirs []TreeFileEntry) ([]TreeFileEntry, []string) {
	baseByPath := entriesByPath(base)
	oursByPath := entriesByPath(ours)
	theirsByPath := entriesByPath(theirs)

	paths := map[string]struct{}{}
	for p := range baseByPath {
		paths[p] = struct{}{}
	}
	for p := range oursByPath {
		paths[p] = struct{}{}
	}
	for p := range theirsByPath {
		paths[p] = struct{}{}
	}

	var merged []TreeFileEntry
	var conflicts []string

	for p := range paths {
		b, inBase := baseByPath[p]
		o, inOurs := oursByPath[p]
		t, inTheirs := theirsByPath[p]

		oursChanged := changedFrom(b, inBase, o, inOurs)
		theirsChanged := changedFrom(b, inBase, t, inTheirs)

		var keep mergeSide
		switch {
		case !oursChanged && !theirsChanged:
			keep = mergeSide{entry: b, present: inBase}
		case oursChanged && !theirsChanged:
			keep = mergeSide{entry: o, present: inOurs}
		case !oursChanged && theirsChanged:
			keep = mergeSide{entry: t, present: inTheirs}
		default:
			// Both sides changed. Identical results merge cleanly.
			if inOurs == inTheirs && (!inOurs || sameEntry(o, t)) {
				keep = mergeSide{entry: o, present: inOurs}
			} else {
				conflicts = append(conflicts, p)
				continue
			}
		}

		if keep.present {
			merged = append(merged, keep.entry)
		}
	}

	sort.Strings(conflicts)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Path < merged[j].Path })
	return merged, conflicts
}

func entriesByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func changedFrom(base TreeFileEntry, inBase bool, side TreeFileEntry, inSide bool) bool {
	if inBase != inSide {
		return true
	}
	if !inBase {
		return false
	}
	return !sameEntry(base, side)
}

func sameEntry(a, b TreeFileEntry) bool {
	return a.Hash == b.Hash && a.Mode == b.Mode
}

// DiffCommits compares the trees of two commits and returns structured
// changes with hunks expanded for modified text files.
func (r *Repo) DiffCommits(ctx context.Context, oldCommit, newCommit object.Hash) ([]diff.Change, error) {
	oldFiles, err := r.flattenCommitTree(ctx, oldCommit)
	if err != nil {
		return nil, err
	}
	newFiles, err := r.flattenCommitTree(ctx, newCommit)
	if err != nil {
		return nil, err
	}
	changes := diff.Changes(toDiffEntries(oldFiles), toDiffEntries(newFiles))
	return diff.ExpandHunks(r.Store, changes)
}

func toDiffEntries(entries []TreeFileEntry) []diff.FileEntry {
	out := make([]diff.FileEntry, len(entries))
	for i, e := range entries {
		out[i] = diff.FileEntry{Path: e.Path, Hash: e.Hash, Mode: e.Mode}
	}
	return out
}
