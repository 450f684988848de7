package object

import "errors"

// Storage failure taxonomy. Callers branch on these with errors.Is; every
// store error wraps exactly one of them.
var (
	// ErrNotFound means the requested object is absent from the store.
	ErrNotFound = errors.New("object not found")

	// ErrCorrupt means stored or received bytes fail digest verification
	// or decompression. Never repaired silently.
	ErrCorrupt = errors.New("object corrupt")

	// ErrTruncated means a pack stream or delta chain ended early.
	ErrTruncated = errors.New("pack truncated")
)
