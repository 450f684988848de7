package smart

import (
	"fmt"
	"io"

	"forge/pkg/repo"
)

// AdvertiseRefs writes the ref advertisement: one "<hash> <name>" pkt-line
// per ref under refs/, sorted by name, terminated by a flush. An empty
// repository advertises only the flush.
func AdvertiseRefs(w io.Writer, r *repo.Repo) error {
	refs, err := r.ListRefs("refs/")
	if err != nil {
		return fmt.Errorf("advertise refs: %w", err)
	}
	for _, ref := range refs {
		if err := WritePacketLine(w, fmt.Sprintf("%s %s", ref.Hash, ref.Name)); err != nil {
			return fmt.Errorf("advertise refs: %w", err)
		}
	}
	return WriteFlush(w)
}
