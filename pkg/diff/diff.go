// Package diff computes structured patches between two tree states. Tree
// comparison works purely on entry hashes and modes; blob contents are only
// decoded when a caller asks for textual hunks.
package diff

import (
	"sort"

	"forge/pkg/object"
)

// ChangeType classifies what happened to a path between two trees.
type ChangeType int

const (
	Added       ChangeType = iota // Path exists only in the new tree.
	Removed                       // Path exists only in the old tree.
	Modified                      // Path exists in both with different blobs.
	ModeChanged                   // Same blob, different mode.
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	case ModeChanged:
		return "mode_changed"
	default:
		return "unknown"
	}
}

// FileEntry is one file of a flattened tree listing, ordered by Path.
type FileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// Change records a single path-level difference. OldHash/OldMode are unset
// for Added, NewHash/NewMode for Removed.
type Change struct {
	Type    ChangeType
	Path    string
	OldHash object.Hash
	NewHash object.Hash
	OldMode string
	NewMode string

	// Hunks is populated by ExpandHunks for Modified changes on text
	// blobs; Binary marks blobs that differ but cannot be hunked.
	Hunks  []Hunk
	Binary bool
}

// Changes computes the ordered change list between two flattened listings.
// Both inputs are sorted by path and walked simultaneously (a merge-join),
// so output order depends only on path names.
func Changes(oldFiles, newFiles []FileEntry) []Change {
	a := sortedByPath(oldFiles)
	b := sortedByPath(newFiles)

	var out []Change
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i >= len(a):
			out = append(out, Change{
				Type: Added, Path: b[j].Path,
				NewHash: b[j].Hash, NewMode: b[j].Mode,
			})
			j++
		case j >= len(b):
			out = append(out, Change{
				Type: Removed, Path: a[i].Path,
				OldHash: a[i].Hash, OldMode: a[i].Mode,
			})
			i++
		case a[i].Path < b[j].Path:
			out = append(out, Change{
				Type: Removed, Path: a[i].Path,
				OldHash: a[i].Hash, OldMode: a[i].Mode,
			})
			i++
		case a[i].Path > b[j].Path:
			out = append(out, Change{
				Type: Added, Path: b[j].Path,
				NewHash: b[j].Hash, NewMode: b[j].Mode,
			})
			j++
		default:
			if a[i].Hash != b[j].Hash {
				out = append(out, Change{
					Type: Modified, Path: a[i].Path,
					OldHash: a[i].Hash, NewHash: b[j].Hash,
					OldMode: a[i].Mode, NewMode: b[j].Mode,
				})
			} else if a[i].Mode != b[j].Mode {
				out = append(out, Change{
					Type: ModeChanged, Path: a[i].Path,
					OldHash: a[i].Hash, NewHash: b[j].Hash,
					OldMode: a[i].Mode, NewMode: b[j].Mode,
				})
			}
			i++
			j++
		}
	}
	return out
}

func sortedByPath(in []FileEntry) []FileEntry {
	out := make([]FileEntry, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
