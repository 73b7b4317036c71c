package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object, live or staged.
type ObjectInfo struct {
	Name    string
	ModTime time.Time
	Staged  bool
}

// Store persists uploaded audio. Writes go through a staging area first:
// SaveStaged writes the object, Promote makes it live once the database row
// is committed, DiscardStaged throws away a write whose row never landed.
// A staged object is never visible to readers.
type Store interface {
	SaveStaged(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Promote(ctx context.Context, name string) error
	DiscardStaged(ctx context.Context, name string) error

	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error

	// List returns every object, staged ones included. Used by the
	// orphan-reconciliation sweep.
	List(ctx context.Context) ([]ObjectInfo, error)
}
