package repo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"forge/pkg/object"
)

// ErrPathNotFound means a path did not resolve inside a tree, either
// because a segment is missing or because an intermediate segment is not a
// directory.
var ErrPathNotFound = errors.New("path not found")

// TreeFileEntry is a single file in a flattened tree, with its full
// forward-slash path.
type TreeFileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// FlattenTree walks a tree object recursively and returns all file entries
// with their full paths, in ascending lexicographic path order. The
// recursive walk is per-level name order, which differs from full-path
// order for siblings like "foo-bar" next to directory "foo" ('-' sorts
// before '/'), so the flattened listing is sorted once at the end. Two
// logically identical trees always produce identical listings; the diff
// engine relies on this.
func (r *Repo) FlattenTree(ctx context.Context, h object.Hash) ([]TreeFileEntry, error) {
	entries, err := r.flattenTreeRec(ctx, h, "")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (r *Repo) flattenTreeRec(ctx context.Context, h object.Hash, prefix string) ([]TreeFileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	entries := sortedEntries(treeObj)
	var result []TreeFileEntry
	for _, entry := range entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = path.Join(prefix, entry.Name)
		}

		if entry.IsDir() {
			sub, err := r.flattenTreeRec(ctx, entry.Hash, fullPath)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
		} else {
			result = append(result, TreeFileEntry{
				Path: fullPath,
				Hash: entry.Hash,
				Mode: entry.Mode,
			})
		}
	}
	return result, nil
}

// ListTree returns the single level of entries at relPath inside the tree,
// name-sorted. An empty relPath lists the root.
func (r *Repo) ListTree(treeHash object.Hash, relPath string) ([]object.TreeEntry, error) {
	relPath = strings.Trim(relPath, "/")

	current := treeHash
	if relPath != "" {
		entry, err := r.EntryAtPath(treeHash, relPath)
		if err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			return nil, fmt.Errorf("list tree %q: not a directory: %w", relPath, ErrPathNotFound)
		}
		current = entry.Hash
	}

	treeObj, err := r.Store.ReadTree(current)
	if err != nil {
		return nil, fmt.Errorf("list tree %q: %w", relPath, err)
	}
	return sortedEntries(treeObj), nil
}

// EntryAtPath descends one path segment at a time from the given tree,
// failing with ErrPathNotFound when a segment is absent or an intermediate
// segment is not a directory entry.
func (r *Repo) EntryAtPath(treeHash object.Hash, relPath string) (object.TreeEntry, error) {
	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	current := treeHash

	for i, part := range parts {
		treeObj, err := r.Store.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, fmt.Errorf("read tree %s: %w", current, err)
		}

		var (
			entry object.TreeEntry
			found bool
		)
		for _, te := range treeObj.Entries {
			if te.Name == part {
				entry = te
				found = true
				break
			}
		}
		if !found {
			return object.TreeEntry{}, fmt.Errorf("path %q: %w", relPath, ErrPathNotFound)
		}

		if i == len(parts)-1 {
			return entry, nil
		}
		if !entry.IsDir() || entry.Hash == "" {
			return object.TreeEntry{}, fmt.Errorf("path %q: %q is not a directory: %w", relPath, part, ErrPathNotFound)
		}
		current = entry.Hash
	}

	return object.TreeEntry{}, fmt.Errorf("path %q: %w", relPath, ErrPathNotFound)
}

// BuildTreeFromEntries converts a flat path->file listing into a
// hierarchical tree, writing TreeObj objects to the store bottom-up and
// returning the root tree hash.
func (r *Repo) BuildTreeFromEntries(files []TreeFileEntry) (object.Hash, error) {
	return r.buildTreeDir(files, "")
}

func (r *Repo) buildTreeDir(files []TreeFileEntry, prefix string) (object.Hash, error) {
	direct := make(map[string]TreeFileEntry)
	subdirs := make(map[string]struct{})

	for _, f := range files {
		var rel string
		if prefix == "" {
			rel = f.Path
		} else {
			if !strings.HasPrefix(f.Path, prefix+"/") {
				continue
			}
			rel = f.Path[len(prefix)+1:]
		}

		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			direct[rel] = f
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(direct)+len(subdirs))
	for name := range direct {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := direct[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var entries []object.TreeEntry
	for _, name := range names {
		if f, isFile := direct[name]; isFile {
			mode := f.Mode
			if mode == "" {
				mode = object.TreeModeFile
			}
			entries = append(entries, object.TreeEntry{
				Name: name,
				Mode: mode,
				Hash: f.Hash,
			})
			continue
		}

		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subHash, err := r.buildTreeDir(files, childPrefix)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", childPrefix, err)
		}
		entries = append(entries, object.TreeEntry{
			Name: name,
			Mode: object.TreeModeDir,
			Hash: subHash,
		})
	}

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

func sortedEntries(tr *object.TreeObj) []object.TreeEntry {
	out := make([]object.TreeEntry, len(tr.Entries))
	copy(out, tr.Entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
