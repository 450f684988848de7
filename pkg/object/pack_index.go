package object

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
)

const (
	packIndexVersion        = 2
	packIndexHeaderSize     = 8
	packIndexFanoutSize     = 256 * 4
	packIndexLargeOffsetBit = uint32(1 << 31)
)

var packIndexMagic = [4]byte{0xff, 't', 'O', 'c'}

// PackIndexEntry is one row in a pack index file.
type PackIndexEntry struct {
	Hash   Hash
	Offset uint64
}

func hashHexToBytes(h Hash) ([]byte, error) {
	if len(h) != 64 {
		return nil, fmt.Errorf("hash length must be 64 hex chars, got %d", len(h))
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", h, err)
	}
	return raw, nil
}

func normalizePackIndexEntries(entries []PackIndexEntry) ([]PackIndexEntry, error) {
	out := make([]PackIndexEntry, len(entries))
	copy(out, entries)

	for i := range out {
		if _, err := hashHexToBytes(out[i].Hash); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hash < out[j].Hash
	})
	return out, nil
}

// WritePackIndex writes an idx v2 style index for the provided entries and
// pack checksum. It returns the hex-encoded index checksum.
func WritePackIndex(w io.Writer, entries []PackIndexEntry, packChecksum Hash) (Hash, error) {
	normalized, err := normalizePackIndexEntries(entries)
	if err != nil {
		return "", err
	}
	packChecksumRaw, err := hashHexToBytes(packChecksum)
	if err != nil {
		return "", fmt.Errorf("pack checksum: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(packIndexMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(packIndexVersion))

	fanout := buildPackIndexFanout(normalized)
	for i := 0; i < 256; i++ {
		_ = binary.Write(&buf, binary.BigEndian, fanout[i])
	}

	for _, entry := range normalized {
		raw, _ := hashHexToBytes(entry.Hash)
		buf.Write(raw)
	}

	largeOffsets := make([]uint64, 0)
	for _, entry := range normalized {
		if entry.Offset < uint64(packIndexLargeOffsetBit) {
			_ = binary.Write(&buf, binary.BigEndian, uint32(entry.Offset))
			continue
		}

		pos := uint32(len(largeOffsets))
		ref := packIndexLargeOffsetBit | pos
		_ = binary.Write(&buf, binary.BigEndian, ref)
		largeOffsets = append(largeOffsets, entry.Offset)
	}
	for _, offset := range largeOffsets {
		_ = binary.Write(&buf, binary.BigEndian, offset)
	}

	buf.Write(packChecksumRaw)
	indexSum := sha256.Sum256(buf.Bytes())
	buf.Write(indexSum[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("write pack index: %w", err)
	}
	return Hash(hex.EncodeToString(indexSum[:])), nil
}

func buildPackIndexFanout(entries []PackIndexEntry) [256]uint32 {
	var counts [256]uint32
	for _, entry := range entries {
		raw, _ := hashHexToBytes(entry.Hash)
		counts[int(raw[0])]++
	}

	var fanout [256]uint32
	var total uint32
	for i := 0; i < 256; i++ {
		total += counts[i]
		fanout[i] = total
	}
	return fanout
}

// PackIndex is an in-memory representation of an idx file.
type PackIndex struct {
	fanout        [256]uint32
	entries       []PackIndexEntry
	PackChecksum  Hash
	IndexChecksum Hash
}

// Entries returns a copy of all index entries in lexicographic hash order.
func (idx *PackIndex) Entries() []PackIndexEntry {
	out := make([]PackIndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Find performs fanout-bounded binary search for a hash in the index.
func (idx *PackIndex) Find(h Hash) (PackIndexEntry, bool) {
	raw, err := hashHexToBytes(h)
	if err != nil || len(raw) == 0 {
		return PackIndexEntry{}, false
	}

	bucket := int(raw[0])
	start := uint32(0)
	if bucket > 0 {
		start = idx.fanout[bucket-1]
	}
	end := idx.fanout[bucket]
	if end <= start {
		return PackIndexEntry{}, false
	}

	lo := int(start)
	hi := int(end)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if idx.entries[mid].Hash < h {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(end) && idx.entries[lo].Hash == h {
		return idx.entries[lo], true
	}
	return PackIndexEntry{}, false
}

// ReadPackIndex parses and validates an idx file.
func ReadPackIndex(data []byte) (*PackIndex, error) {
	minLen := packIndexHeaderSize + packIndexFanoutSize + 2*sha256.Size
	if len(data) < minLen {
		return nil, fmt.Errorf("pack index too short (%d bytes): %w", len(data), ErrTruncated)
	}
	if string(data[:4]) != string(packIndexMagic[:]) {
		return nil, fmt.Errorf("invalid pack index magic %q: %w", data[:4], ErrCorrupt)
	}
	if v := binary.BigEndian.Uint32(data[4:8]); v != packIndexVersion {
		return nil, fmt.Errorf("unsupported pack index version %d: %w", v, ErrCorrupt)
	}

	body := data[:len(data)-sha256.Size]
	trailer := data[len(data)-sha256.Size:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("pack index checksum mismatch: %w", ErrCorrupt)
	}

	idx := &PackIndex{IndexChecksum: Hash(hex.EncodeToString(trailer))}

	off := packIndexHeaderSize
	for i := 0; i < 256; i++ {
		idx.fanout[i] = binary.BigEndian.Uint32(body[off : off+4])
		off += 4
	}
	count := int(idx.fanout[255])

	need := off + count*sha256.Size + count*4 + sha256.Size
	if len(body) < need {
		return nil, fmt.Errorf("pack index body too short for %d entries: %w", count, ErrTruncated)
	}

	idx.entries = make([]PackIndexEntry, count)
	for i := 0; i < count; i++ {
		idx.entries[i].Hash = Hash(hex.EncodeToString(body[off : off+sha256.Size]))
		off += sha256.Size
	}

	largeRefs := make([]int, 0)
	for i := 0; i < count; i++ {
		v := binary.BigEndian.Uint32(body[off : off+4])
		off += 4
		if v&packIndexLargeOffsetBit != 0 {
			idx.entries[i].Offset = uint64(v &^ packIndexLargeOffsetBit)
			largeRefs = append(largeRefs, i)
			continue
		}
		idx.entries[i].Offset = uint64(v)
	}
	for _, i := range largeRefs {
		pos := int(idx.entries[i].Offset)
		largeOff := off + pos*8
		if largeOff+8 > len(body)-sha256.Size {
			return nil, fmt.Errorf("pack index large offset %d out of range: %w", pos, ErrTruncated)
		}
		idx.entries[i].Offset = binary.BigEndian.Uint64(body[largeOff : largeOff+8])
	}
	off += len(largeRefs) * 8

	idx.PackChecksum = Hash(hex.EncodeToString(body[off : off+sha256.Size]))
	return idx, nil
}
