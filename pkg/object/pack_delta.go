package object

import (
	"bytes"
	"fmt"
	"io"
)

func encodeDeltaVarint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 10)
	for v > 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func decodeDeltaVarint(r io.ByteReader) (uint64, error) {
	var (
		value uint64
		shift uint
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("delta varint too large: %w", ErrCorrupt)
		}
	}
}

// encodeOfsDeltaDistance encodes a backward distance for OFS_DELTA entries.
func encodeOfsDeltaDistance(distance uint64) []byte {
	if distance == 0 {
		return []byte{0}
	}
	b := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		b = append([]byte{byte((distance & 0x7f) | 0x80)}, b...)
	}
	return b
}

func decodeOfsDeltaDistance(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("ofs-delta distance: %w", ErrTruncated)
	}
	i := 0
	c := data[i]
	i++
	offset := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("ofs-delta distance: %w", ErrTruncated)
		}
		c = data[i]
		i++
		offset = ((offset + 1) << 7) | uint64(c&0x7f)
	}
	return offset, i, nil
}

// buildInsertOnlyDelta returns a valid delta stream encoding the target
// object as literal insert chunks. It trades compression ratio for
// deterministic behavior.
func buildInsertOnlyDelta(base, target []byte) []byte {
	var out bytes.Buffer
	out.Write(encodeDeltaVarint(uint64(len(base))))
	out.Write(encodeDeltaVarint(uint64(len(target))))

	for pos := 0; pos < len(target); {
		chunk := len(target) - pos
		if chunk > 127 {
			chunk = 127
		}
		out.WriteByte(byte(chunk))
		out.Write(target[pos : pos+chunk])
		pos += chunk
	}
	return out.Bytes()
}

// applyDelta applies delta instructions to base and returns the result.
func applyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read base size: %w", ErrTruncated)
	}
	if int(baseSize) != len(base) {
		return nil, fmt.Errorf("delta base size mismatch: got %d want %d: %w", baseSize, len(base), ErrCorrupt)
	}
	resultSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read result size: %w", ErrTruncated)
	}

	out := make([]byte, 0, resultSize)
	for dr.Len() > 0 {
		cmd, err := dr.ReadByte()
		if err != nil {
			return nil, err
		}
		if cmd&0x80 != 0 {
			offset, size, err := decodeDeltaCopyArgs(dr, cmd)
			if err != nil {
				return nil, err
			}
			if offset+size > int64(len(base)) {
				return nil, fmt.Errorf("delta copy out of bounds: %w", ErrCorrupt)
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		if cmd == 0 {
			return nil, fmt.Errorf("invalid delta command 0: %w", ErrCorrupt)
		}
		insert := make([]byte, int(cmd))
		if _, err := io.ReadFull(dr, insert); err != nil {
			return nil, fmt.Errorf("delta insert: %w", ErrTruncated)
		}
		out = append(out, insert...)
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("delta result size mismatch: got %d expected %d: %w", len(out), resultSize, ErrCorrupt)
	}
	return out, nil
}

// decodeDeltaCopyArgs decodes the offset/size argument bytes of a copy
// command; which bytes are present is selected by bits in cmd.
func decodeDeltaCopyArgs(r io.ByteReader, cmd byte) (offset int64, size int64, err error) {
	for i := 0; i < 4; i++ {
		if cmd&(1<<i) == 0 {
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("delta copy offset byte %d: %w", i, ErrTruncated)
		}
		offset |= int64(b) << (8 * i)
	}
	for i := 0; i < 3; i++ {
		if cmd&(1<<(4+i)) == 0 {
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("delta copy size byte %d: %w", i, ErrTruncated)
		}
		size |= int64(b) << (8 * i)
	}
	if size == 0 {
		size = 0x10000
	}
	return offset, size, nil
}
