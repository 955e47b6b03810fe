package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/app/metrics"
	"github.com/R3E-Network/feed_layer/internal/app/storage"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// Service exposes named feed trees and records their prices as snapshots.
type Service struct {
	feeds map[string]Feed
	names []string
	store storage.SnapshotStore
	now   func() time.Time
	log   *logger.Logger
}

// New constructs a service over already built feeds. store may be nil, in
// which case snapshots are not recorded.
func New(feeds map[string]Feed, store storage.SnapshotStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	s := &Service{
		feeds: make(map[string]Feed, len(feeds)),
		store: store,
		now:   time.Now,
		log:   log,
	}
	for name, f := range feeds {
		s.feeds[name] = f
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// NewFromConfig builds every configured feed tree and wraps them in a Service.
func NewFromConfig(configs map[string]domain.FeedConfig, deps Dependencies, store storage.SnapshotStore) (*Service, error) {
	feeds, err := NewBuilder(configs, deps).BuildAll()
	if err != nil {
		return nil, err
	}
	return New(feeds, store, deps.Logger), nil
}

// Names lists the configured feeds in sorted order.
func (s *Service) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the named feed tree.
func (s *Service) Get(name string) (Feed, error) {
	f, ok := s.feeds[strings.TrimSpace(name)]
	if !ok {
		return nil, feederr.NotFound("unknown feed %q", name)
	}
	return f, nil
}

// Update refreshes one named feed tree and records the resulting price.
func (s *Service) Update(ctx context.Context, name string) error {
	f, err := s.Get(name)
	if err != nil {
		return err
	}
	return s.update(ctx, name, f)
}

// UpdateAll refreshes every feed tree concurrently. The returned error joins
// the failures of individual trees.
func (s *Service) UpdateAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, name := range s.names {
		name := name
		f := s.feeds[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.update(ctx, name, f); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Service) update(ctx context.Context, name string, f Feed) error {
	start := time.Now()
	err := f.Update(ctx)
	metrics.RecordFeedUpdate(name, time.Since(start), err)
	if err != nil {
		s.log.WithError(err).WithField("feed", name).Warn("feed update failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	if _, err := s.RecordSnapshot(ctx, name); err != nil && !feederr.IsNotFound(err) {
		s.log.WithError(err).WithField("feed", name).Warn("record snapshot failed")
	}
	return nil
}

// RecordSnapshot stores the current price of a feed. A feed without a current
// price yields a not-found error.
func (s *Service) RecordSnapshot(ctx context.Context, name string) (domain.Snapshot, error) {
	f, err := s.Get(name)
	if err != nil {
		return domain.Snapshot{}, err
	}
	price := f.CurrentPrice()
	if price == nil {
		return domain.Snapshot{}, feederr.NotFound("%s has no current price", name)
	}
	last, _ := f.LastUpdateTime()
	snap := domain.Snapshot{
		Feed:           name,
		Price:          fixed.String(price, f.PriceFeedDecimals()),
		Decimals:       f.PriceFeedDecimals(),
		LastUpdateTime: last,
		CollectedAt:    s.now().UTC(),
	}
	if s.store == nil {
		return snap, nil
	}
	return s.store.CreateSnapshot(ctx, snap)
}

// ListSnapshots returns recorded prices of a feed, newest first.
func (s *Service) ListSnapshots(ctx context.Context, name string, limit int) ([]domain.Snapshot, error) {
	if _, err := s.Get(name); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListSnapshots(ctx, name, limit)
}
