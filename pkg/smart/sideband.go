package smart

import (
	"fmt"
	"io"
)

// Sideband channel identifiers. Sideband frames travel inside pkt-lines
// with the channel byte prepended to the payload.
const (
	SidebandData     byte = 0x01
	SidebandProgress byte = 0x02
	SidebandError    byte = 0x03
)

// Room left for the channel byte inside a pkt-line payload.
const maxSidebandChunk = maxPktPayload - 1

// SidebandWriter multiplexes a data stream plus progress and error
// messages over pkt-line frames. The data channel implements io.Writer so
// a pack stream can be piped straight through.
type SidebandWriter struct {
	w io.Writer
}

func NewSidebandWriter(w io.Writer) *SidebandWriter {
	return &SidebandWriter{w: w}
}

func (sw *SidebandWriter) writeFrame(channel byte, data []byte) error {
	frame := make([]byte, 1+len(data))
	frame[0] = channel
	copy(frame[1:], data)
	return WritePacket(sw.w, frame)
}

// Write sends data frames, splitting payloads that exceed one pkt-line.
func (sw *SidebandWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxSidebandChunk {
			chunk = chunk[:maxSidebandChunk]
		}
		if err := sw.writeFrame(SidebandData, chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (sw *SidebandWriter) WriteProgress(msg string) error {
	return sw.writeFrame(SidebandProgress, []byte(msg))
}

func (sw *SidebandWriter) WriteError(msg string) error {
	return sw.writeFrame(SidebandError, []byte(msg))
}

// SidebandDataReader presents the data channel of a sideband stream as a
// sequential io.Reader. Progress frames go to the optional callback; an
// error frame surfaces as a read error; the section flush ends the stream.
type SidebandDataReader struct {
	r          io.Reader
	onProgress func(string)
	buf        []byte
	done       bool
}

func NewSidebandDataReader(r io.Reader, onProgress func(string)) *SidebandDataReader {
	return &SidebandDataReader{r: r, onProgress: onProgress}
}

func (dr *SidebandDataReader) Read(p []byte) (int, error) {
	for len(dr.buf) == 0 {
		if dr.done {
			return 0, io.EOF
		}
		payload, flush, err := ReadPacket(dr.r)
		if err == io.EOF || flush {
			dr.done = true
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case SidebandData:
			dr.buf = payload[1:]
		case SidebandProgress:
			if dr.onProgress != nil {
				dr.onProgress(string(payload[1:]))
			}
		case SidebandError:
			dr.done = true
			return 0, fmt.Errorf("remote error: %s", payload[1:])
		default:
			return 0, fmt.Errorf("unknown sideband channel %d", payload[0])
		}
	}

	n := copy(p, dr.buf)
	dr.buf = dr.buf[n:]
	return n, nil
}
