package repo

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"forge/pkg/object"
)

func testRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir()+"/repo", "repo", "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func TestCompareAndSwapRefCreateAndUpdate(t *testing.T) {
	r := testRepo(t)
	first := object.HashBytes([]byte("first"))
	second := object.HashBytes([]byte("second"))

	// Empty expected-old means the ref must not exist yet.
	if err := r.CompareAndSwapRef("main", "", first); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != first {
		t.Fatalf("ref = %s, want %s", got, first)
	}

	// Creating again must observe the mismatch.
	if err := r.CompareAndSwapRef("main", "", second); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("duplicate create: err = %v, want ErrRefCASMismatch", err)
	}

	if err := r.CompareAndSwapRef("main", first, second); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = r.ResolveRef("main")
	if got != second {
		t.Fatalf("ref = %s, want %s", got, second)
	}

	// Stale update loses and leaves the ref alone.
	if err := r.CompareAndSwapRef("main", first, object.HashBytes([]byte("x"))); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("stale update: err = %v, want ErrRefCASMismatch", err)
	}
	got, _ = r.ResolveRef("main")
	if got != second {
		t.Fatalf("ref moved by failed CAS to %s", got)
	}
}

func TestCompareAndSwapRefConcurrentSingleWinner(t *testing.T) {
	r := testRepo(t)
	base := object.HashBytes([]byte("base"))
	if err := r.CompareAndSwapRef("main", "", base); err != nil {
		t.Fatalf("seed ref: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)

	successCh := make(chan object.Hash, workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			next := object.Hash(fmt.Sprintf("%064x", i+1))
			if err := r.CompareAndSwapRef("main", base, next); err != nil {
				errCh <- err
				return
			}
			successCh <- next
		}()
	}

	wg.Wait()
	close(successCh)
	close(errCh)

	var winners []object.Hash
	for h := range successCh {
		winners = append(winners, h)
	}
	if len(winners) != 1 {
		t.Fatalf("%d CAS winners, want exactly 1", len(winners))
	}
	for err := range errCh {
		if !errors.Is(err, ErrRefCASMismatch) {
			t.Fatalf("loser error = %v, want ErrRefCASMismatch", err)
		}
	}

	got, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != winners[0] {
		t.Fatalf("ref = %s, want winner %s", got, winners[0])
	}
}

func TestDeleteRef(t *testing.T) {
	r := testRepo(t)
	tip := object.HashBytes([]byte("tip"))
	if err := r.CompareAndSwapRef("gone", "", tip); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := r.DeleteRef("gone", object.HashBytes([]byte("other"))); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("stale delete: err = %v, want ErrRefCASMismatch", err)
	}
	if err := r.DeleteRef("gone", tip); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.ResolveRef("gone"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("deleted ref resolved: err = %v", err)
	}
}

func TestListRefsSortedAndFiltered(t *testing.T) {
	r := testRepo(t)
	tip := object.HashBytes([]byte("t"))

	for _, name := range []string{"refs/heads/main", "refs/heads/dev", "refs/tags/v1"} {
		if err := r.CompareAndSwapRef(name, "", tip); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	heads, err := r.ListRefs("refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(heads) != 2 || heads[0].Name != "refs/heads/dev" || heads[1].Name != "refs/heads/main" {
		t.Fatalf("heads = %+v", heads)
	}

	all, err := r.ListRefs("refs/")
	if err != nil {
		t.Fatalf("ListRefs all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all refs = %+v", all)
	}
}
