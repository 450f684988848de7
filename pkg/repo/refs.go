package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"forge/pkg/object"
)

var (
	// ErrRefNotFound means the named ref does not exist.
	ErrRefNotFound = errors.New("ref not found")

	// ErrRefCASMismatch means a guarded ref update observed a different
	// current value than the caller expected. The caller may re-read and
	// retry; the update was not applied.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Ref is one (name, target) pair. Name is the full ref name, e.g.
// "refs/heads/main".
type Ref struct {
	Name string
	Hash object.Hash
}

func (r *Repo) refPath(name string) string {
	return filepath.Join(r.Dir, filepath.FromSlash(name))
}

// fullRefName expands short branch names under refs/heads/.
func fullRefName(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

// ResolveRef reads the hash a ref points at. Short branch names are tried
// under refs/heads/.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	name = fullRefName(name)
	h, err := readRefHash(r.refPath(name))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if h == "" {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
	}
	return h, nil
}

// PeelToCommit resolves a hash to a commit hash, following at most one
// layer of annotated tags.
func (r *Repo) PeelToCommit(h object.Hash) (object.Hash, error) {
	objType, data, err := r.Store.Read(h)
	if err != nil {
		return "", err
	}
	switch objType {
	case object.TypeCommit:
		return h, nil
	case object.TypeTag:
		tag, err := object.UnmarshalTag(data)
		if err != nil {
			return "", err
		}
		return r.PeelToCommit(tag.TargetHash)
	default:
		return "", fmt.Errorf("object %s is a %s, not a commit", h, objType)
	}
}

// ListRefs lists references whose full name starts with prefix (e.g.
// "refs/heads/"), sorted by name.
func (r *Repo) ListRefs(prefix string) ([]Ref, error) {
	root := filepath.Join(r.Dir, "refs")
	refs := make([]Ref, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}

		rel, err := filepath.Rel(r.Dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs = append(refs, Ref{
			Name: name,
			Hash: object.Hash(strings.TrimSpace(string(data))),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// CompareAndSwapRef updates a ref using lockfile + rename atomic semantics.
// expectedOld is the hash the caller believes the ref currently holds; the
// empty hash means "the ref must not exist yet". The update only applies
// when the observation holds, otherwise ErrRefCASMismatch is returned and
// nothing changes. This is the single synchronization primitive between
// concurrent pushes and merges to the same branch.
func (r *Repo) CompareAndSwapRef(name string, expectedOld, newHash object.Hash) error {
	name = fullRefName(name)
	refPath := r.refPath(name)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if oldHash != expectedOld {
		return fmt.Errorf(
			"update ref %q: %w (expected %q, found %q)",
			name, ErrRefCASMismatch, expectedOld, oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(newHash) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false
	return nil
}

// DeleteRef removes a ref under the same guard as CompareAndSwapRef.
func (r *Repo) DeleteRef(name string, expectedOld object.Hash) error {
	name = fullRefName(name)
	refPath := r.refPath(name)

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: read old hash: %w", name, err)
	}
	if oldHash != expectedOld {
		return fmt.Errorf(
			"delete ref %q: %w (expected %q, found %q)",
			name, ErrRefCASMismatch, expectedOld, oldHash,
		)
	}
	if oldHash == "" {
		return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
	}

	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete ref %q: remove: %w", name, err)
	}
	return nil
}

// acquireRefLock takes the per-ref lock file, retrying briefly when another
// writer holds it.
func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held too long", filepath.Base(lockPath))
		}
		time.Sleep(refLockRetryDelay)
	}
}

// readRefHash reads a ref file, returning the empty hash when the ref does
// not exist.
func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
