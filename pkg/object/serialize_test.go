package object

import (
	"bytes"
	"testing"
)

func TestMarshalTreeSortsEntries(t *testing.T) {
	a := &TreeObj{Entries: []TreeEntry{
		{Name: "zebra.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("z"))},
		{Name: "apple.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("a"))},
		{Name: "mango", Mode: TreeModeDir, Hash: HashBytes([]byte("m"))},
	}}
	b := &TreeObj{Entries: []TreeEntry{
		{Name: "mango", Mode: TreeModeDir, Hash: HashBytes([]byte("m"))},
		{Name: "apple.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("a"))},
		{Name: "zebra.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("z"))},
	}}

	if !bytes.Equal(MarshalTree(a), MarshalTree(b)) {
		t.Fatal("same entries in different order marshaled differently")
	}

	parsed, err := UnmarshalTree(MarshalTree(a))
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	want := []string{"apple.txt", "mango", "zebra.txt"}
	for i, e := range parsed.Entries {
		if e.Name != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Name, want[i])
		}
	}
}

func TestTreeRoundtripNamesWithSpaces(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "my file.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("a"))},
		{Name: "spaced  twice", Mode: TreeModeExecutable, Hash: HashBytes([]byte("b"))},
		{Name: "plain", Mode: TreeModeDir, Hash: HashBytes([]byte("c"))},
	}}

	parsed, err := UnmarshalTree(MarshalTree(tr))
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	if len(parsed.Entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(parsed.Entries))
	}
	want := []TreeEntry{
		{Name: "my file.txt", Mode: TreeModeFile, Hash: HashBytes([]byte("a"))},
		{Name: "plain", Mode: TreeModeDir, Hash: HashBytes([]byte("c"))},
		{Name: "spaced  twice", Mode: TreeModeExecutable, Hash: HashBytes([]byte("b"))},
	}
	for i, e := range parsed.Entries {
		if e != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, e, want[i])
		}
	}
}

func TestWriteTreeRejectsUnrepresentableNames(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"", "two\nlines", "a/b"} {
		_, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
			{Name: name, Mode: TreeModeFile, Hash: HashBytes([]byte("x"))},
		}})
		if err == nil {
			t.Fatalf("name %q accepted", name)
		}
	}
}

func TestUnmarshalTreeRejectsUnknownMode(t *testing.T) {
	if _, err := UnmarshalTree([]byte("f.txt 777 " + string(HashBytes([]byte("x"))) + "\n")); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestCommitRoundtrip(t *testing.T) {
	c := &CommitObj{
		TreeHash:  HashBytes([]byte("tree")),
		Parents:   []Hash{HashBytes([]byte("p1")), HashBytes([]byte("p2"))},
		Author:    "alice <alice@example.com>",
		Committer: "bob <bob@example.com>",
		Timestamp: 1700000123,
		Message:   "merge feature\n\nwith a multi-line body\n",
	}

	parsed, err := UnmarshalCommit(MarshalCommit(c))
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if parsed.TreeHash != c.TreeHash {
		t.Fatalf("tree = %s, want %s", parsed.TreeHash, c.TreeHash)
	}
	if len(parsed.Parents) != 2 || parsed.Parents[0] != c.Parents[0] || parsed.Parents[1] != c.Parents[1] {
		t.Fatalf("parents = %v", parsed.Parents)
	}
	if parsed.Author != c.Author || parsed.Committer != c.Committer {
		t.Fatalf("identity mismatch: %+v", parsed)
	}
	if parsed.Timestamp != c.Timestamp {
		t.Fatalf("timestamp = %d, want %d", parsed.Timestamp, c.Timestamp)
	}
	if parsed.Message != c.Message {
		t.Fatalf("message = %q, want %q", parsed.Message, c.Message)
	}
}

func TestUnmarshalCommitRejectsThreeParents(t *testing.T) {
	c := &CommitObj{
		TreeHash:  HashBytes([]byte("tree")),
		Parents:   []Hash{HashBytes([]byte("1")), HashBytes([]byte("2"))},
		Author:    "a",
		Committer: "a",
		Message:   "m",
	}
	raw := MarshalCommit(c)

	// Splice in a third parent line.
	extra := []byte("parent " + string(HashBytes([]byte("3"))) + "\n")
	idx := bytes.Index(raw, []byte("author "))
	bad := append(append(append([]byte{}, raw[:idx]...), extra...), raw[idx:]...)

	if _, err := UnmarshalCommit(bad); err == nil {
		t.Fatal("three parents accepted")
	}
}

func TestTagRoundtrip(t *testing.T) {
	tag := &TagObj{
		TargetHash: HashBytes([]byte("commit")),
		Name:       "v2.1.0",
		Message:    "point release",
	}
	parsed, err := UnmarshalTag(MarshalTag(tag))
	if err != nil {
		t.Fatalf("UnmarshalTag: %v", err)
	}
	if parsed.TargetHash != tag.TargetHash || parsed.Name != tag.Name || parsed.Message != tag.Message {
		t.Fatalf("parsed = %+v, want %+v", parsed, tag)
	}
}
