package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
)

// ErrDuplicate is returned when a record with the same identifier exists.
var ErrDuplicate = errors.New("record already exists")

// SnapshotStore persists observed prices of named feed trees.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap pricefeed.Snapshot) (pricefeed.Snapshot, error)
	// ListSnapshots returns the most recent snapshots of a feed, newest first.
	// A non-positive limit returns all of them.
	ListSnapshots(ctx context.Context, feed string, limit int) ([]pricefeed.Snapshot, error)
}
