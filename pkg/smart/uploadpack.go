package smart

import (
	"context"
	"fmt"
	"io"
	"strings"

	"forge/pkg/object"
	"forge/pkg/repo"
)

// UploadPack serves one fetch. It reads "want <hash>" and "have <hash>"
// lines up to the flush packet, computes the objects reachable from the
// wants minus those reachable from the haves, and streams them as a pack
// over the sideband data channel, flush-terminated. A clone is simply a
// fetch with no haves.
func UploadPack(ctx context.Context, r *repo.Repo, in io.Reader, out io.Writer) error {
	wants, haves, err := readNegotiation(in)
	if err != nil {
		return writeUploadError(out, err)
	}
	if len(wants) == 0 {
		return writeUploadError(out, fmt.Errorf("no wants given"))
	}
	for _, w := range wants {
		if !r.Store.Has(w) {
			return writeUploadError(out, fmt.Errorf("want %s: %w", w, object.ErrNotFound))
		}
	}

	wanted, err := r.Store.ReachableSet(ctx, wants)
	if err != nil {
		return writeUploadError(out, err)
	}
	had, err := r.Store.ReachableSet(ctx, haves)
	if err != nil {
		return writeUploadError(out, err)
	}

	send := make([]object.Hash, 0, len(wanted))
	for h := range wanted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := had[h]; ok {
			continue
		}
		send = append(send, h)
	}

	sb := NewSidebandWriter(out)
	if err := sb.WriteProgress(fmt.Sprintf("counting objects: %d", len(send))); err != nil {
		return err
	}
	if err := r.Store.WritePack(ctx, send, sb); err != nil {
		_ = sb.WriteError(err.Error())
		return err
	}
	return WriteFlush(out)
}

func readNegotiation(in io.Reader) (wants, haves []object.Hash, err error) {
	for {
		line, flush, err := ReadPacketLine(in)
		if err == io.EOF || flush {
			return wants, haves, nil
		}
		if err != nil {
			return nil, nil, err
		}

		verb, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, nil, fmt.Errorf("malformed negotiation line %q", line)
		}
		h := object.Hash(strings.TrimSpace(rest))
		if !object.ValidHash(h) {
			return nil, nil, fmt.Errorf("malformed hash in %q", line)
		}
		switch verb {
		case "want":
			wants = append(wants, h)
		case "have":
			haves = append(haves, h)
		default:
			return nil, nil, fmt.Errorf("unexpected negotiation verb %q", verb)
		}
	}
}

// writeUploadError reports the failure on the sideband error channel so
// the client sees the reason, then returns it to the caller.
func writeUploadError(out io.Writer, err error) error {
	_ = NewSidebandWriter(out).WriteError(err.Error())
	_ = WriteFlush(out)
	return err
}
