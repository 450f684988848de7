package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name so that two
// logically identical trees always marshal to identical bytes. Each entry is
// one line:
//
//	name mode hash
//
// Names may contain spaces; the line is decoded from the right, since mode
// and hash never do. Names containing a newline are rejected by
// ValidTreeEntryName before a tree is written.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s\n", e.Name, treeModeOrDefault(e.Mode), string(e.Hash))
	}
	return buf.Bytes()
}

// ValidTreeEntryName reports whether a name can appear in a serialized
// tree. Empty names and names containing a newline or the path separator
// are not representable.
func ValidTreeEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("empty tree entry name")
	}
	if strings.ContainsAny(name, "\n/") {
		return fmt.Errorf("tree entry name %q contains a newline or slash", name)
	}
	return nil
}

// UnmarshalTree parses a TreeObj from its serialized form. The last two
// space-separated fields of each line are the mode and hash; everything
// before them is the entry name, so names with spaces round-trip.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		hashSep := strings.LastIndexByte(line, ' ')
		if hashSep < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		modeSep := strings.LastIndexByte(line[:hashSep], ' ')
		if modeSep < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		name := line[:modeSep]
		if err := ValidTreeEntryName(name); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		mode, err := parseTreeMode(line[modeSep+1 : hashSep])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name: name,
			Mode: mode,
			Hash: Hash(line[hashSep+1:]),
		})
	}
	return tr, nil
}

func treeModeOrDefault(mode string) string {
	if strings.TrimSpace(mode) == "" {
		return TreeModeFile
	}
	return mode
}

func parseTreeMode(mode string) (string, error) {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable, TreeModeSymlink:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero to two)
//	author A
//	committer C
//	timestamp T
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "committer":
			c.Committer = val
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad timestamp %q: %w", val, err)
			}
			c.Timestamp = ts
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if len(c.Parents) > 2 {
		return nil, fmt.Errorf("unmarshal commit: %d parents, at most 2 allowed", len(c.Parents))
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes a TagObj:
//
//	object H
//	tag name
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", string(t.TargetHash))
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a TagObj from its serialized form.
func UnmarshalTag(data []byte) (*TagObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal tag: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	t := &TagObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: malformed header line %q", line)
		}
		switch key {
		case "object":
			t.TargetHash = Hash(val)
		case "tag":
			t.Name = val
		default:
			return nil, fmt.Errorf("unmarshal tag: unknown header key %q", key)
		}
	}
	return t, nil
}
