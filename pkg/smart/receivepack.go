package smart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"forge/pkg/object"
	"forge/pkg/repo"
)

// RefCommand is one requested ref update: move Name from Old to New. The
// zero hash on Old means create, on New means delete.
type RefCommand struct {
	Old  object.Hash
	New  object.Hash
	Name string
}

// ReceivePack serves one push. It reads "<old> <new> <name>" command
// lines up to the flush, then the raw pack payload. The pack is ingested
// atomically before any ref moves; each command then applies through ref
// compare-and-swap independently, so one lost race reports "ng" for its
// ref without aborting the others. The report is pkt-lines: "unpack ok"
// or "unpack ng <reason>", one "ok <ref>" or "ng <ref> <reason>" per
// command, then a flush.
func ReceivePack(ctx context.Context, r *repo.Repo, in io.Reader, out io.Writer) error {
	commands, err := readRefCommands(in)
	if err != nil {
		return err
	}

	needsPack := false
	for _, cmd := range commands {
		if cmd.New != object.ZeroHash {
			needsPack = true
			break
		}
	}

	if needsPack {
		if _, err := r.Store.IngestPack(ctx, in); err != nil {
			if werr := WritePacketLine(out, fmt.Sprintf("unpack ng %v", err)); werr != nil {
				return werr
			}
			return WriteFlush(out)
		}
	}
	if err := WritePacketLine(out, "unpack ok"); err != nil {
		return err
	}

	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		status := applyRefCommand(r, cmd)
		if err := WritePacketLine(out, status); err != nil {
			return err
		}
	}
	return WriteFlush(out)
}

func readRefCommands(in io.Reader) ([]RefCommand, error) {
	var commands []RefCommand
	for {
		line, flush, err := ReadPacketLine(in)
		if flush {
			return commands, nil
		}
		if err == io.EOF {
			return nil, fmt.Errorf("push ended before flush")
		}
		if err != nil {
			return nil, err
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed ref command %q", line)
		}
		oldHash, newHash, name := object.Hash(fields[0]), object.Hash(fields[1]), fields[2]
		if !object.ValidHash(oldHash) && oldHash != object.ZeroHash {
			return nil, fmt.Errorf("malformed old hash in %q", line)
		}
		if !object.ValidHash(newHash) && newHash != object.ZeroHash {
			return nil, fmt.Errorf("malformed new hash in %q", line)
		}
		if oldHash == object.ZeroHash && newHash == object.ZeroHash {
			return nil, fmt.Errorf("ref command %q moves nothing", line)
		}
		commands = append(commands, RefCommand{Old: oldHash, New: newHash, Name: name})
	}
}

// applyRefCommand performs one guarded ref move and renders its status
// line. The zero wire hash maps to the ref store's "absent" observation.
func applyRefCommand(r *repo.Repo, cmd RefCommand) string {
	expectedOld := cmd.Old
	if expectedOld == object.ZeroHash {
		expectedOld = ""
	}

	var err error
	if cmd.New == object.ZeroHash {
		err = r.DeleteRef(cmd.Name, expectedOld)
	} else {
		if !r.Store.Has(cmd.New) {
			return fmt.Sprintf("ng %s missing object %s", cmd.Name, cmd.New)
		}
		err = r.CompareAndSwapRef(cmd.Name, expectedOld, cmd.New)
	}

	switch {
	case err == nil:
		return fmt.Sprintf("ok %s", cmd.Name)
	case errors.Is(err, repo.ErrRefCASMismatch):
		return fmt.Sprintf("ng %s stale old value", cmd.Name)
	case errors.Is(err, repo.ErrRefNotFound):
		return fmt.Sprintf("ng %s ref not found", cmd.Name)
	default:
		return fmt.Sprintf("ng %s %v", cmd.Name, err)
	}
}
