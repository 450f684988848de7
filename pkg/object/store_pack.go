package object

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// readPacked reads one object out of the store's pack files, resolving any
// delta chain it sits on. The recomputed digest must match the requested
// hash or the read fails with ErrCorrupt.
func (s *Store) readPacked(h Hash) (ObjectType, []byte, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return "", nil, err
	}
	for _, idxPath := range idxPaths {
		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: read pack index %s: %w", h, filepath.Base(idxPath), err)
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: parse pack index %s: %w", h, filepath.Base(idxPath), err)
		}
		if _, ok := idx.Find(h); !ok {
			continue
		}

		packPath := packPathForIndex(idxPath)
		packData, err := os.ReadFile(packPath)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: read pack %s: %w", h, filepath.Base(packPath), err)
		}

		pf, err := ReadPack(packData)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: parse pack %s: %w", h, filepath.Base(packPath), err)
		}
		if pf.Checksum != idx.PackChecksum {
			return "", nil, fmt.Errorf(
				"object read %s: checksum mismatch between idx %s and pack %s: %w",
				h, filepath.Base(idxPath), filepath.Base(packPath), ErrCorrupt,
			)
		}

		resolved, err := ResolvePackEntries(pf.Entries, s.storeBaseLookup())
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: resolve pack %s: %w", h, filepath.Base(packPath), err)
		}
		for _, entry := range resolved {
			objType, ok := packTypeToObjectType(entry.Type)
			if !ok {
				continue
			}
			if HashObject(objType, entry.Data) == h {
				return objType, entry.Data, nil
			}
		}
		return "", nil, fmt.Errorf("object read %s: indexed in %s but digest never matched: %w", h, filepath.Base(idxPath), ErrCorrupt)
	}

	return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
}

// packedHas reports whether any pack index lists the hash.
func (s *Store) packedHas(h Hash) (bool, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return false, err
	}
	for _, idxPath := range idxPaths {
		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			return false, err
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			return false, err
		}
		if _, ok := idx.Find(h); ok {
			return true, nil
		}
	}
	return false, nil
}

// storeBaseLookup adapts the store into a ref-delta base resolver.
func (s *Store) storeBaseLookup() baseLookup {
	return func(h Hash) (PackObjectType, []byte, error) {
		objType, data, err := s.Read(h)
		if err != nil {
			return 0, nil, err
		}
		packType, ok := objectTypeToPackType(objType)
		if !ok {
			return 0, nil, fmt.Errorf("object %s has unpackable type %q", h, objType)
		}
		return packType, data, nil
	}
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.root, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
