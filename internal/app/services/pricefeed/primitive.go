package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/app/metrics"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// Defaults applied when PrimitiveOptions leave a field unset.
const (
	DefaultDecimals              = 18
	DefaultMinTimeBetweenUpdates = int64(60)
	DefaultLookback              = int64(7200)
	DefaultFetchTimeout          = 10 * time.Second
)

// PrimitiveOptions configures a PrimitiveFeed.
type PrimitiveOptions struct {
	Name                  string
	Decimals              int
	MinTimeBetweenUpdates int64
	Lookback              int64
	TwapLength            int64
	InvertPrice           bool
	Policy                LookupPolicy
	FetchTimeout          time.Duration
}

// feedState is an immutable snapshot of one successful fetch. The raw fields
// hold upstream values; current and periods are what readers observe.
type feedState struct {
	updated    bool
	lastUpdate int64

	rawCurrent *big.Int
	rawPeriods []domain.PricePeriod

	current *big.Int
	periods []domain.PricePeriod
}

// PrimitiveFeed polls one Source, debounced by MinTimeBetweenUpdates, and
// publishes each successful sample as a single immutable state.
type PrimitiveFeed struct {
	opts   PrimitiveOptions
	source Source
	clock  Clock
	log    *logger.Logger

	updateMu sync.Mutex
	state    atomic.Pointer[feedState]
}

var _ Feed = (*PrimitiveFeed)(nil)

// NewPrimitiveFeed creates a feed that has not yet updated.
func NewPrimitiveFeed(source Source, clock Clock, opts PrimitiveOptions, log *logger.Logger) *PrimitiveFeed {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	if opts.Decimals <= 0 {
		opts.Decimals = DefaultDecimals
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.MinTimeBetweenUpdates < 0 {
		opts.MinTimeBetweenUpdates = 0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Policy.AfterLast == "" {
		opts.Policy.AfterLast = AfterLastNotFound
	}
	f := &PrimitiveFeed{opts: opts, source: source, clock: clock, log: log}
	f.state.Store(&feedState{})
	return f
}

func (f *PrimitiveFeed) Name() string { return f.opts.Name }

// Update fetches a new sample unless the last successful fetch is younger
// than MinTimeBetweenUpdates. On failure the published state is untouched.
func (f *PrimitiveFeed) Update(ctx context.Context) error {
	f.updateMu.Lock()
	defer f.updateMu.Unlock()

	now := f.clock.Now()
	prev := f.state.Load()
	if prev.updated && now-prev.lastUpdate < f.opts.MinTimeBetweenUpdates {
		f.log.WithField("feed", f.opts.Name).
			WithField("last_update", prev.lastUpdate).
			Debug("update skipped, too soon")
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.opts.FetchTimeout)
	defer cancel()

	sample, err := f.source.Sample(fetchCtx, SampleRequest{
		Now:           now,
		Lookback:      f.opts.Lookback,
		Previous:      prev.rawPeriods,
		PreviousTime:  prev.lastUpdate,
		PreviousPrice: prev.rawCurrent,
	})
	if err == nil && sample.Current == nil {
		err = feederr.MissingField("", "current price")
	}
	if err != nil {
		if kind := feederr.KindOf(err); kind != "" {
			metrics.RecordFetchError(string(kind))
		}
		return fmt.Errorf("update %s: %w", f.opts.Name, err)
	}

	f.state.Store(f.publish(now, sample))
	f.log.WithField("feed", f.opts.Name).
		WithField("price", fixed.String(sample.Current, f.opts.Decimals)).
		WithField("periods", len(sample.Periods)).
		Debug("feed updated")
	return nil
}

func (f *PrimitiveFeed) publish(now int64, sample Sample) *feedState {
	st := &feedState{
		updated:    true,
		lastUpdate: now,
		rawCurrent: cloneInt(sample.Current),
		rawPeriods: make([]domain.PricePeriod, len(sample.Periods)),
		periods:    make([]domain.PricePeriod, len(sample.Periods)),
	}
	for i, p := range sample.Periods {
		st.rawPeriods[i] = p.Clone()
		st.periods[i] = f.view(p)
	}
	st.current = f.invert(sample.Current)
	return st
}

func (f *PrimitiveFeed) view(p domain.PricePeriod) domain.PricePeriod {
	out := p.Clone()
	if !f.opts.InvertPrice {
		return out
	}
	out.OpenPrice = f.invert(p.OpenPrice)
	out.ClosePrice = f.invert(p.ClosePrice)
	// Inversion swaps the extremes.
	out.HighPrice, out.LowPrice = f.invert(p.LowPrice), f.invert(p.HighPrice)
	return out
}

func (f *PrimitiveFeed) invert(v *big.Int) *big.Int {
	if !f.opts.InvertPrice {
		return cloneInt(v)
	}
	return fixed.Invert(v, f.opts.Decimals)
}

func (f *PrimitiveFeed) CurrentPrice() *big.Int {
	return cloneInt(f.state.Load().current)
}

// HistoricalPrice resolves t with a TWAP when a window is configured or
// supplied through ancillary data, otherwise with Lookup. LatestTime returns
// the current price.
func (f *PrimitiveFeed) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	overrides, err := parseAncillary(ancillary)
	if err != nil {
		return nil, err
	}
	st := f.state.Load()
	if !st.updated {
		return nil, feederr.NotFound("%s has not updated", f.opts.Name)
	}
	if t == LatestTime {
		if st.current == nil {
			return nil, feederr.NotFound("%s has no current price", f.opts.Name)
		}
		return cloneInt(st.current), nil
	}

	twapLength := f.opts.TwapLength
	if overrides.hasTwapLength {
		twapLength = overrides.twapLength
	}
	if twapLength > 0 {
		return TWAP(st.periods, t, twapLength, f.opts.Policy.Buffer)
	}

	if f.opts.Policy.AfterLast == AfterLastCurrent && len(st.periods) > 0 &&
		t > st.periods[len(st.periods)-1].CloseTime && st.current != nil {
		return cloneInt(st.current), nil
	}
	return Lookup(st.periods, t, f.opts.Policy.Buffer)
}

// Periods returns a copy of the published price history.
func (f *PrimitiveFeed) Periods() []domain.PricePeriod {
	st := f.state.Load()
	out := make([]domain.PricePeriod, len(st.periods))
	for i, p := range st.periods {
		out[i] = p.Clone()
	}
	return out
}

func (f *PrimitiveFeed) LastUpdateTime() (int64, bool) {
	st := f.state.Load()
	return st.lastUpdate, st.updated
}

func (f *PrimitiveFeed) PriceFeedDecimals() int { return f.opts.Decimals }

func (f *PrimitiveFeed) Lookback() int64 { return f.opts.Lookback }
