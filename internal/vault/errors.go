package vault

import "errors"

var (
	// ErrNotFound reports that a conversation id has no backing record.
	// Callers hitting this during normal operation (stale dirty entries,
	// racing deletes) should treat it as an absent result, not a failure.
	ErrNotFound = errors.New("vault: conversation not found")

	// ErrIndexNotLoaded reports that an operation requiring the metadata
	// index ran before LoadIndex completed.
	ErrIndexNotLoaded = errors.New("vault: index not loaded")

	// ErrStoreClosed reports an operation against a closed store.
	ErrStoreClosed = errors.New("vault: store closed")

	// ErrInvalidID reports a conversation id that cannot name a record
	// file (empty, too long, or containing path-hostile characters).
	ErrInvalidID = errors.New("vault: invalid conversation id")

	// ErrSnapshotCorrupt reports a combined snapshot that exists but does
	// not parse. Consolidation refuses to clobber it; remove or repair the
	// file to let the next sync rebuild from scratch.
	ErrSnapshotCorrupt = errors.New("vault: combined snapshot is corrupt")
)
