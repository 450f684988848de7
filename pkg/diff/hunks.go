package diff

import (
	"bytes"
	"fmt"
	"strings"

	"forge/pkg/object"
)

const hunkContext = 3

// Line is one line of a hunk, tagged with its origin: ' ' context,
// '-' removed, '+' added.
type Line struct {
	Kind byte
	Text string
}

// Hunk is a contiguous run of changed lines with surrounding context,
// addressed in 1-based line numbers like a unified diff header.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// ExpandHunks decodes the blobs behind every Modified change and fills in
// its line-based hunks. Blobs containing NUL bytes are reported as binary
// rather than hunked. Changes other than Modified pass through untouched.
func ExpandHunks(store *object.Store, changes []Change) ([]Change, error) {
	out := make([]Change, len(changes))
	copy(out, changes)

	for i := range out {
		if out[i].Type != Modified {
			continue
		}
		oldBlob, err := store.ReadBlob(out[i].OldHash)
		if err != nil {
			return nil, fmt.Errorf("expand hunks %q: %w", out[i].Path, err)
		}
		newBlob, err := store.ReadBlob(out[i].NewHash)
		if err != nil {
			return nil, fmt.Errorf("expand hunks %q: %w", out[i].Path, err)
		}

		if isBinary(oldBlob.Data) || isBinary(newBlob.Data) {
			out[i].Binary = true
			continue
		}
		out[i].Hunks = buildHunks(splitLines(oldBlob.Data), splitLines(newBlob.Data))
	}
	return out, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.Split(s, "\n")
}

// buildHunks runs the Myers line diff and groups edits into hunks with up
// to hunkContext lines of shared context on either side.
func buildHunks(a, b []string) []Hunk {
	ops := myersDiff(a, b)
	if len(ops) == 0 {
		return nil
	}

	// Indexes of non-equal ops.
	changed := make([]int, 0, len(ops))
	for i, op := range ops {
		if op.Type != OpEqual {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []Hunk
	start := changed[0] - hunkContext
	if start < 0 {
		start = 0
	}
	end := changed[0]

	flushAt := func(lo, hi int) {
		// Line numbers for the hunk header: count op positions before lo.
		oldLine, newLine := 1, 1
		for i := 0; i < lo; i++ {
			switch ops[i].Type {
			case OpEqual:
				oldLine++
				newLine++
			case OpDelete:
				oldLine++
			case OpInsert:
				newLine++
			}
		}

		h := Hunk{OldStart: oldLine, NewStart: newLine}
		for i := lo; i <= hi; i++ {
			switch ops[i].Type {
			case OpEqual:
				h.Lines = append(h.Lines, Line{Kind: ' ', Text: ops[i].Line})
				h.OldCount++
				h.NewCount++
			case OpDelete:
				h.Lines = append(h.Lines, Line{Kind: '-', Text: ops[i].Line})
				h.OldCount++
			case OpInsert:
				h.Lines = append(h.Lines, Line{Kind: '+', Text: ops[i].Line})
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
	}

	for _, idx := range changed[1:] {
		// Merge into the current hunk when the gap fits inside two
		// context windows, otherwise flush and start a new one.
		if idx-end <= 2*hunkContext {
			end = idx
			continue
		}
		hi := end + hunkContext
		if hi >= len(ops) {
			hi = len(ops) - 1
		}
		flushAt(start, hi)

		start = idx - hunkContext
		if start < 0 {
			start = 0
		}
		end = idx
	}

	hi := end + hunkContext
	if hi >= len(ops) {
		hi = len(ops) - 1
	}
	flushAt(start, hi)

	return hunks
}
