package repo

import (
	"container/heap"
	"context"
	"fmt"

	"forge/pkg/object"
)

// CommitSummary is one row of a commit log.
type CommitSummary struct {
	Hash      object.Hash `json:"hash"`
	Author    string      `json:"author"`
	Timestamp int64       `json:"timestamp"`
	Message   string      `json:"message"`
}

// historyItem orders the log walk: newest timestamp first, ties broken by
// discovery order so a child always precedes its parents.
type historyItem struct {
	hash      object.Hash
	timestamp int64
	seq       int
}

type historyHeap []historyItem

func (h historyHeap) Len() int { return len(h) }

func (h historyHeap) Less(i, j int) bool {
	if h[i].timestamp == h[j].timestamp {
		return h[i].seq < h[j].seq
	}
	return h[i].timestamp > h[j].timestamp
}

func (h historyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *historyHeap) Push(x any) {
	*h = append(*h, x.(historyItem))
}

func (h *historyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CommitHistory walks the commit graph from the branch tip and returns one
// page of summaries, reverse-chronological by commit timestamp with
// parent-first topological tie-breaks. Pages are 1-based.
func (r *Repo) CommitHistory(ctx context.Context, branch string, page, perPage int) ([]CommitSummary, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	tip, err := r.ResolveRef(branch)
	if err != nil {
		return nil, err
	}
	tipCommit, err := r.PeelToCommit(tip)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", branch, err)
	}

	skip := (page - 1) * perPage
	out := make([]CommitSummary, 0, perPage)

	seq := 0
	visited := map[object.Hash]struct{}{tipCommit: {}}
	frontier := &historyHeap{}
	heap.Init(frontier)

	c, err := r.readCommit(tipCommit)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", branch, err)
	}
	heap.Push(frontier, historyItem{hash: tipCommit, timestamp: c.Timestamp, seq: seq})

	for frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := heap.Pop(frontier).(historyItem)
		commit, err := r.readCommit(item.hash)
		if err != nil {
			return nil, fmt.Errorf("history %q: read %s: %w", branch, item.hash, err)
		}

		if skip > 0 {
			skip--
		} else {
			out = append(out, CommitSummary{
				Hash:      item.hash,
				Author:    commit.Author,
				Timestamp: commit.Timestamp,
				Message:   commit.Message,
			})
			if len(out) == perPage {
				break
			}
		}

		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			parent, err := r.readCommit(p)
			if err != nil {
				return nil, fmt.Errorf("history %q: read parent %s: %w", branch, p, err)
			}
			seq++
			heap.Push(frontier, historyItem{hash: p, timestamp: parent.Timestamp, seq: seq})
		}
	}

	return out, nil
}
