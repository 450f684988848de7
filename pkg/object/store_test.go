package object

import (
	"bytes"
	"compress/zlib"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreWriteReadRoundtrip(t *testing.T) {
	s := NewStore(t.TempDir())

	h, err := s.Write(TypeBlob, []byte("hello world\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !ValidHash(h) {
		t.Fatalf("Write returned invalid hash %q", h)
	}

	objType, data, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if objType != TypeBlob {
		t.Fatalf("Read type = %q, want blob", objType)
	}
	if string(data) != "hello world\n" {
		t.Fatalf("Read data = %q", data)
	}
}

func TestStoreWriteIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())

	h1, err := s.Write(TypeBlob, []byte("same content"))
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	h2, err := s.Write(TypeBlob, []byte("same content"))
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
}

func TestStoreTypeAffectsHash(t *testing.T) {
	s := NewStore(t.TempDir())

	hBlob, err := s.Write(TypeBlob, []byte("x"))
	if err != nil {
		t.Fatalf("Write blob: %v", err)
	}
	hTree := HashObject(TypeTree, []byte("x"))
	if hBlob == hTree {
		t.Fatal("blob and tree envelopes hashed identically")
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	missing := HashBytes([]byte("not stored"))
	if _, _, err := s.Read(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing: err = %v, want ErrNotFound", err)
	}
	if s.Has(missing) {
		t.Fatal("Has reported a missing object")
	}
}

func TestStoreReadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	h, err := s.Write(TypeBlob, []byte("original payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Replace the loose file with a valid zlib stream whose content no
	// longer matches the addressed hash.
	var tampered bytes.Buffer
	zw := zlib.NewWriter(&tampered)
	if _, err := zw.Write(makeObjectEnvelope(TypeBlob, []byte("tampered payload"))); err != nil {
		t.Fatalf("compress tampered: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close tampered: %v", err)
	}
	path := filepath.Join(dir, "objects", string(h[:2]), string(h[2:]))
	if err := os.WriteFile(path, tampered.Bytes(), 0o644); err != nil {
		t.Fatalf("overwrite loose file: %v", err)
	}

	if _, _, err := s.Read(h); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Read tampered: err = %v, want ErrCorrupt", err)
	}
}

func TestStoreTypedRoundtrips(t *testing.T) {
	s := NewStore(t.TempDir())

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("file contents")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	tree := &TreeObj{Entries: []TreeEntry{
		{Name: "file.txt", Mode: TreeModeFile, Hash: blobHash},
	}}
	treeHash, err := s.WriteTree(tree)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}

	commit := &CommitObj{
		TreeHash:  treeHash,
		Author:    "alice",
		Committer: "alice",
		Timestamp: 1700000000,
		Message:   "initial",
	}
	commitHash, err := s.WriteCommit(commit)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}

	tagHash, err := s.WriteTag(&TagObj{TargetHash: commitHash, Name: "v1.0.0", Message: "release"})
	if err != nil {
		t.Fatalf("WriteTag: %v", err)
	}

	gotTree, err := s.ReadTree(treeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(gotTree.Entries) != 1 || gotTree.Entries[0].Name != "file.txt" {
		t.Fatalf("ReadTree entries = %+v", gotTree.Entries)
	}

	gotCommit, err := s.ReadCommit(commitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if gotCommit.TreeHash != treeHash || gotCommit.Message != "initial" {
		t.Fatalf("ReadCommit = %+v", gotCommit)
	}
	if gotCommit.Timestamp != commit.Timestamp {
		t.Fatalf("ReadCommit timestamp = %d, want %d", gotCommit.Timestamp, commit.Timestamp)
	}

	gotTag, err := s.ReadTag(tagHash)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if gotTag.TargetHash != commitHash || gotTag.Name != "v1.0.0" {
		t.Fatalf("ReadTag = %+v", gotTag)
	}

	// Reading an object as the wrong type must fail.
	if _, err := s.ReadCommit(blobHash); err == nil {
		t.Fatal("ReadCommit on a blob succeeded")
	}
}
