package smart

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPacketRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	lines := []string{"want abc", "have def", ""}

	for _, l := range lines {
		if err := WritePacketLine(&buf, l); err != nil {
			t.Fatalf("WritePacketLine(%q): %v", l, err)
		}
	}
	if err := WriteFlush(&buf); err != nil {
		t.Fatalf("WriteFlush: %v", err)
	}

	for _, want := range lines {
		got, flush, err := ReadPacketLine(&buf)
		if err != nil {
			t.Fatalf("ReadPacketLine: %v", err)
		}
		if flush {
			t.Fatal("premature flush")
		}
		if got != want {
			t.Fatalf("line = %q, want %q", got, want)
		}
	}

	_, flush, err := ReadPacketLine(&buf)
	if err != nil {
		t.Fatalf("read flush: %v", err)
	}
	if !flush {
		t.Fatal("flush packet not detected")
	}

	if _, _, err := ReadPacketLine(&buf); err != io.EOF {
		t.Fatalf("after flush: err = %v, want io.EOF", err)
	}
}

func TestPacketWireFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, []byte("hi")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if got := buf.String(); got != "0006hi" {
		t.Fatalf("wire = %q, want %q", got, "0006hi")
	}

	buf.Reset()
	if err := WriteFlush(&buf); err != nil {
		t.Fatalf("WriteFlush: %v", err)
	}
	if got := buf.String(); got != "0000" {
		t.Fatalf("flush = %q", got)
	}
}

func TestReadPacketRejectsMalformedLength(t *testing.T) {
	if _, _, err := ReadPacket(strings.NewReader("zzzzpayload")); err == nil {
		t.Fatal("malformed length accepted")
	}
	// Length below the prefix size but not zero.
	if _, _, err := ReadPacket(strings.NewReader("0003")); err == nil {
		t.Fatal("undersized length accepted")
	}
}

func TestWritePacketRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, make([]byte, maxPktPayload+1)); err == nil {
		t.Fatal("oversized payload accepted")
	}
}

func TestSidebandRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSidebandWriter(&buf)

	if err := sw.WriteProgress("counting"); err != nil {
		t.Fatalf("WriteProgress: %v", err)
	}
	payload := bytes.Repeat([]byte("data!"), 40000) // spans multiple frames
	if _, err := sw.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := WriteFlush(&buf); err != nil {
		t.Fatalf("WriteFlush: %v", err)
	}

	var progress []string
	dr := NewSidebandDataReader(&buf, func(msg string) { progress = append(progress, msg) })
	got, err := io.ReadAll(dr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("data stream mismatch: %d bytes, want %d", len(got), len(payload))
	}
	if len(progress) != 1 || progress[0] != "counting" {
		t.Fatalf("progress = %v", progress)
	}
}

func TestSidebandErrorChannel(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSidebandWriter(&buf)
	if err := sw.WriteError("boom"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	dr := NewSidebandDataReader(&buf, nil)
	if _, err := io.ReadAll(dr); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want remote error carrying the message", err)
	}
}
