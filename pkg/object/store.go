package object

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store is a content-addressed object store. Loose objects live under a
// 2-character fan-out directory layout (objects/ab/cdef0123...), each file
// holding one zlib-compressed "type len\0content" envelope. Packed objects
// are read through idx files under objects/pack/.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash,
// either loose or packed.
func (s *Store) Has(h Hash) bool {
	if !ValidHash(h) {
		return false
	}
	if _, err := os.Stat(s.objectPath(h)); err == nil {
		return true
	}
	found, err := s.packedHas(h)
	return err == nil && found
}

// Write stores an object loose and returns its content hash. Re-adding
// identical content returns the same hash and performs no duplicate write.
// Writes are atomic: data goes to a temp file which is renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(makeObjectEnvelope(objType, data)); err != nil {
		_ = zw.Close()
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
// The content digest is recomputed before returning; a mismatch surfaces
// as ErrCorrupt, an absent object as ErrNotFound.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if !ValidHash(h) {
		return "", nil, fmt.Errorf("object read %q: malformed hash: %w", h, ErrNotFound)
	}

	objType, content, err := s.readLoose(h)
	if err == nil {
		if actual := HashObject(objType, content); actual != h {
			return "", nil, fmt.Errorf("object read %s: digest mismatch (computed %s): %w", h, actual, ErrCorrupt)
		}
		return objType, content, nil
	}
	if !os.IsNotExist(err) {
		return "", nil, err
	}

	// Fall back to the packed read path.
	return s.readPacked(h)
}

// readLoose reads and decodes one loose object file. A missing file is
// reported with os.IsNotExist semantics so Read can fall through to packs.
func (s *Store) readLoose(h Hash) (ObjectType, []byte, error) {
	raw, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		return "", nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, ErrCorrupt)
	}
	envelope, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, ErrCorrupt)
	}
	if err := zr.Close(); err != nil {
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, ErrCorrupt)
	}

	objType, content, err := parseObjectEnvelope(envelope)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return objType, content, nil
}

// makeObjectEnvelope builds the canonical "type len\0content" byte form.
func makeObjectEnvelope(objType ObjectType, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out
}

func parseObjectEnvelope(raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("invalid envelope (no NUL): %w", ErrCorrupt)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("invalid envelope header %q: %w", header, ErrCorrupt)
	}
	objType := ObjectType(parts[0])
	switch objType {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
	default:
		return "", nil, fmt.Errorf("unknown object type %q: %w", parts[0], ErrCorrupt)
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid envelope length %q: %w", parts[1], ErrCorrupt)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("envelope length mismatch (header=%d, actual=%d): %w", length, len(content), ErrCorrupt)
	}
	return objType, content, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj. Entry names that cannot be
// represented in the serialized form are rejected before anything is
// written.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	for _, e := range tr.Entries {
		if err := ValidTreeEntryName(e.Name); err != nil {
			return "", fmt.Errorf("write tree: %w", err)
		}
	}
	return s.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores a TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes a TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	return UnmarshalTag(data)
}

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}
