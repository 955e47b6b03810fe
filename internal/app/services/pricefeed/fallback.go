package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// Fallback answers from the first child, in order, that works. Children
// whose most recent update failed are skipped until they update again.
type Fallback struct {
	name     string
	children []Feed
	decimals int
	log      *logger.Logger

	updateMu sync.Mutex
	// failed[i] reports whether child i failed its last attempted update.
	failed atomic.Pointer[[]bool]
}

var _ Feed = (*Fallback)(nil)

// NewFallback requires at least one child and uniform child decimals.
func NewFallback(name string, children []Feed, log *logger.Logger) (*Fallback, error) {
	decimals, err := uniformDecimals(name, children)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	f := &Fallback{name: name, children: children, decimals: decimals, log: log}
	initial := make([]bool, len(children))
	f.failed.Store(&initial)
	return f, nil
}

// Update tries children in order and stops at the first successful update.
// It fails with the last child's error when every child fails.
func (f *Fallback) Update(ctx context.Context) error {
	f.updateMu.Lock()
	defer f.updateMu.Unlock()

	prev := *f.failed.Load()
	failed := make([]bool, len(f.children))
	copy(failed, prev)

	var lastErr error
	for i, child := range f.children {
		err := child.Update(ctx)
		failed[i] = err != nil
		if err == nil {
			f.failed.Store(&failed)
			return nil
		}
		lastErr = err
		f.log.WithError(err).
			WithField("feed", f.name).
			WithField("child", i).
			Warn("fallback child update failed, trying next")
	}
	f.failed.Store(&failed)
	return fmt.Errorf("update %s: every fallback failed: %w", f.name, lastErr)
}

func (f *Fallback) active() []Feed {
	failed := *f.failed.Load()
	out := make([]Feed, 0, len(f.children))
	for i, child := range f.children {
		if !failed[i] {
			out = append(out, child)
		}
	}
	return out
}

func (f *Fallback) CurrentPrice() *big.Int {
	for _, child := range f.active() {
		if v := child.CurrentPrice(); v != nil {
			return v
		}
	}
	return nil
}

// HistoricalPrice returns the first child answer, or the last child's error.
func (f *Fallback) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	active := f.active()
	if len(active) == 0 {
		return nil, feederr.NotFound("%s: every fallback failed its last update", f.name)
	}
	var lastErr error
	for _, child := range active {
		v, err := historicalOf(child, t, ancillary)
		if err == nil {
			return v, nil
		}
		if feederr.IsParse(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fallback) LastUpdateTime() (int64, bool) {
	for _, child := range f.active() {
		if t, ok := child.LastUpdateTime(); ok {
			return t, true
		}
	}
	return 0, false
}

func (f *Fallback) PriceFeedDecimals() int { return f.decimals }

func (f *Fallback) Lookback() int64 { return maxLookback(f.children) }
