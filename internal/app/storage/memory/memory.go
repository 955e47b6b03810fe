package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/app/storage"
)

// Store is an in-memory snapshot store. It is safe for concurrent use and is
// primarily intended for tests and local development.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string][]pricefeed.Snapshot
	// maxPerFeed bounds retained snapshots per feed; zero keeps everything.
	maxPerFeed int
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{snapshots: make(map[string][]pricefeed.Snapshot)}
}

// NewBounded creates a store that keeps at most maxPerFeed snapshots per feed.
func NewBounded(maxPerFeed int) *Store {
	s := New()
	s.maxPerFeed = maxPerFeed
	return s
}

func (s *Store) CreateSnapshot(_ context.Context, snap pricefeed.Snapshot) (pricefeed.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	} else {
		for _, existing := range s.snapshots[snap.Feed] {
			if existing.ID == snap.ID {
				return pricefeed.Snapshot{}, fmt.Errorf("snapshot %s for feed %s: %w", snap.ID, snap.Feed, storage.ErrDuplicate)
			}
		}
	}
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = time.Now().UTC()
	}

	list := append(s.snapshots[snap.Feed], snap)
	if s.maxPerFeed > 0 && len(list) > s.maxPerFeed {
		list = append([]pricefeed.Snapshot(nil), list[len(list)-s.maxPerFeed:]...)
	}
	s.snapshots[snap.Feed] = list
	return snap, nil
}

func (s *Store) ListSnapshots(_ context.Context, feed string, limit int) ([]pricefeed.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]pricefeed.Snapshot(nil), s.snapshots[feed]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CollectedAt.After(result[j].CollectedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
