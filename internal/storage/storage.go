package storage

import (
	"context"

	"vaultScope/internal/model"
)

// Storage defines a sink for yield snapshots.
type Storage interface {
	PutSnapshots(snapshots []model.YieldSnapshot) error
}

// ContextStorage is implemented by sinks whose writes can be cancelled.
type ContextStorage interface {
	Storage
	PutSnapshotsContext(ctx context.Context, snapshots []model.YieldSnapshot) error
}

// Put writes through PutSnapshotsContext when s supports it.
func Put(ctx context.Context, s Storage, snapshots []model.YieldSnapshot) error {
	if cs, ok := s.(ContextStorage); ok {
		return cs.PutSnapshotsContext(ctx, snapshots)
	}
	return s.PutSnapshots(snapshots)
}
