package object

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// PackEntry represents one object entry in a pack stream. Delta entries
// carry their raw delta payload; BaseOffset is set for OFS_DELTA and
// BaseHash for REF_DELTA.
type PackEntry struct {
	Type       PackObjectType
	Size       uint64
	Data       []byte
	Offset     uint64
	BaseOffset uint64
	BaseHash   Hash
}

// PackFile is the decoded content of a full pack stream. Entries still
// contain unresolved deltas; use ResolvePackEntries for the flattened view.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ResolvedEntry is a pack entry with all deltas applied.
type ResolvedEntry struct {
	Type   PackObjectType
	Data   []byte
	Offset uint64
}

// ReadPack parses a full pack byte slice, verifies the trailer checksum,
// and returns decoded entries with their offsets.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha256.Size {
		return nil, fmt.Errorf("pack too short (%d bytes): %w", len(data), ErrTruncated)
	}

	payload := data[:len(data)-sha256.Size]
	trailer := data[len(data)-sha256.Size:]

	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("pack checksum mismatch: %w", ErrCorrupt)
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryOffset := uint64(offset)
		objType, size, n, err := decodePackEntryHeader(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		entry := PackEntry{
			Type:   objType,
			Size:   size,
			Offset: entryOffset,
		}

		switch objType {
		case PackOfsDelta:
			distance, n, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			offset += n
			if distance > entryOffset {
				return nil, fmt.Errorf("entry %d: ofs-delta distance %d before pack start: %w", i, distance, ErrCorrupt)
			}
			entry.BaseOffset = entryOffset - distance
		case PackRefDelta:
			if len(payload[offset:]) < sha256.Size {
				return nil, fmt.Errorf("entry %d: ref-delta base hash: %w", i, ErrTruncated)
			}
			entry.BaseHash = Hash(hex.EncodeToString(payload[offset : offset+sha256.Size]))
			offset += sha256.Size
		case PackCommit, PackTree, PackBlob, PackTag:
		default:
			return nil, fmt.Errorf("entry %d: unknown pack type %d: %w", i, objType, ErrCorrupt)
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("entry %d: missing compressed payload: %w", i, ErrTruncated)
		}

		sub := bytes.NewReader(payload[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("entry %d: zlib reader: %w", i, ErrCorrupt)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("entry %d: decompress: %w", i, ErrCorrupt)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("entry %d: close zlib stream: %w", i, ErrCorrupt)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("entry %d: size mismatch header=%d decoded=%d: %w", i, size, len(raw), ErrCorrupt)
		}

		consumed := len(payload[offset:]) - sub.Len()
		offset += consumed

		entry.Data = raw
		entries = append(entries, entry)
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("pack has %d trailing undecoded bytes: %w", len(payload)-offset, ErrCorrupt)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data)
}

// baseLookup resolves REF_DELTA bases that live outside the pack, typically
// against an existing store. May be nil if only in-pack bases are allowed.
type baseLookup func(Hash) (PackObjectType, []byte, error)

// ResolvePackEntries flattens all delta entries. Chains are resolved by an
// iterative fixpoint over the entry list with a per-entry depth guard, so
// adversarial packs cannot trigger unbounded recursion.
func ResolvePackEntries(entries []PackEntry, lookup baseLookup) ([]ResolvedEntry, error) {
	resolvedByOffset := make(map[uint64]ResolvedEntry, len(entries))
	depthByOffset := make(map[uint64]int, len(entries))
	byHash := make(map[Hash]ResolvedEntry, len(entries))

	record := func(e PackEntry, objType PackObjectType, data []byte, depth int) error {
		if depth > maxDeltaChainDepth {
			return fmt.Errorf("delta chain at offset %d deeper than %d: %w", e.Offset, maxDeltaChainDepth, ErrCorrupt)
		}
		r := ResolvedEntry{Type: objType, Data: data, Offset: e.Offset}
		resolvedByOffset[e.Offset] = r
		depthByOffset[e.Offset] = depth
		if h := hashResolved(r); h != "" {
			byHash[h] = r
		}
		return nil
	}

	pending := len(entries)
	for pending > 0 {
		progressed := false
		for _, e := range entries {
			if _, done := resolvedByOffset[e.Offset]; done {
				continue
			}

			switch e.Type {
			case PackOfsDelta:
				base, ok := resolvedByOffset[e.BaseOffset]
				if !ok {
					continue
				}
				data, err := applyDelta(base.Data, e.Data)
				if err != nil {
					return nil, fmt.Errorf("ofs-delta at offset %d: %w", e.Offset, err)
				}
				if err := record(e, base.Type, data, depthByOffset[e.BaseOffset]+1); err != nil {
					return nil, err
				}
			case PackRefDelta:
				base, ok := byHash[e.BaseHash]
				depth := 0
				if ok {
					depth = depthByOffset[base.Offset]
				} else {
					if lookup == nil {
						continue
					}
					baseType, baseData, err := lookup(e.BaseHash)
					if err != nil {
						continue
					}
					base = ResolvedEntry{Type: baseType, Data: baseData}
				}
				data, err := applyDelta(base.Data, e.Data)
				if err != nil {
					return nil, fmt.Errorf("ref-delta at offset %d: %w", e.Offset, err)
				}
				if err := record(e, base.Type, data, depth+1); err != nil {
					return nil, err
				}
			default:
				if err := record(e, e.Type, e.Data, 0); err != nil {
					return nil, err
				}
			}
			progressed = true
			pending--
		}

		if !progressed {
			return nil, fmt.Errorf("%d delta entries with unresolvable bases: %w", pending, ErrTruncated)
		}
	}

	out := make([]ResolvedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, resolvedByOffset[e.Offset])
	}
	return out, nil
}

func hashResolved(r ResolvedEntry) Hash {
	objType, ok := packTypeToObjectType(r.Type)
	if !ok {
		return ""
	}
	return HashObject(objType, r.Data)
}
