// Package smart implements the wire protocol for clone, fetch, and push:
// pkt-line framing, ref advertisement, upload-pack, and receive-pack.
package smart

import (
	"fmt"
	"io"
)

// pkt-line framing: each packet is a 4-char lowercase hex length (counting
// the prefix itself) followed by the payload. "0000" is the flush packet.
const (
	pktLenSize    = 4
	maxPktPayload = 65516
)

// WritePacket frames one payload as a pkt-line.
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) > maxPktPayload {
		return fmt.Errorf("pkt-line payload %d exceeds maximum %d", len(payload), maxPktPayload)
	}
	if _, err := fmt.Fprintf(w, "%04x", pktLenSize+len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WritePacketLine frames a text line, appending the trailing newline.
func WritePacketLine(w io.Writer, line string) error {
	return WritePacket(w, []byte(line+"\n"))
}

// WriteFlush writes the flush packet that terminates a packet section.
func WriteFlush(w io.Writer) error {
	_, err := io.WriteString(w, "0000")
	return err
}

// ReadPacket reads one pkt-line. It returns flush=true with a nil payload
// for the flush packet, and io.EOF once the stream is exhausted.
func ReadPacket(r io.Reader) (payload []byte, flush bool, err error) {
	var lenBuf [pktLenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, false, io.EOF
		}
		return nil, false, err
	}

	var n int
	if _, err := fmt.Sscanf(string(lenBuf[:]), "%04x", &n); err != nil {
		return nil, false, fmt.Errorf("malformed pkt-line length %q", lenBuf)
	}
	if n == 0 {
		return nil, true, nil
	}
	if n < pktLenSize || n > pktLenSize+maxPktPayload {
		return nil, false, fmt.Errorf("pkt-line length %d out of range", n)
	}

	payload = make([]byte, n-pktLenSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, fmt.Errorf("short pkt-line payload: %w", err)
	}
	return payload, false, nil
}

// ReadPacketLine reads one pkt-line and strips the trailing newline.
func ReadPacketLine(r io.Reader) (line string, flush bool, err error) {
	payload, flush, err := ReadPacket(r)
	if err != nil || flush {
		return "", flush, err
	}
	s := string(payload)
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s, false, nil
}
