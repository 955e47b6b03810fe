package pricefeed

import (
	"context"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New("test", logger.Options{Output: io.Discard})
}

type fakeClock struct{ now atomic.Int64 }

func newFakeClock(t int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t)
	return c
}

func (c *fakeClock) Now() int64      { return c.now.Load() }
func (c *fakeClock) Advance(d int64) { c.now.Add(d) }
func (c *fakeClock) Set(t int64)     { c.now.Store(t) }

// price parses a decimal string at 18 decimals.
func price(s string) *big.Int {
	v, err := fixed.FromString(s, 18)
	if err != nil {
		panic(err)
	}
	return v
}

func assertPrice(t *testing.T, want string, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	assert.Equal(t, price(want).String(), got.String(), msgAndArgs...)
}

func period(open, close int64, openPrice, closePrice string) domain.PricePeriod {
	return domain.PricePeriod{
		OpenTime:   open,
		CloseTime:  close,
		OpenPrice:  price(openPrice),
		ClosePrice: price(closePrice),
	}
}

// scriptedSource returns queued samples or errors in order, repeating the
// last entry once the queue is exhausted.
type scriptedSource struct {
	mu      sync.Mutex
	samples []Sample
	errs    []error
	calls   int
	reqs    []SampleRequest
}

func (s *scriptedSource) push(sample Sample, err error) *scriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	s.errs = append(s.errs, err)
	return s
}

func (s *scriptedSource) Sample(_ context.Context, req SampleRequest) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	i := min(s.calls, len(s.samples)-1)
	s.calls++
	return s.samples[i], s.errs[i]
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// staticFeed is a Feed with fixed answers used to exercise composites.
type staticFeed struct {
	current    *big.Int
	historical map[int64]*big.Int
	histErr    error
	updateErr  error
	decimals   int
	lookback   int64
	lastUpdate int64
	updated    bool
	updates    atomic.Int32
}

func newStatic(current string) *staticFeed {
	f := &staticFeed{decimals: 18, lookback: 3600, historical: map[int64]*big.Int{}}
	if current != "" {
		f.current = price(current)
		f.updated = true
		f.lastUpdate = 100
	}
	return f
}

func (f *staticFeed) at(t int64, v string) *staticFeed {
	f.historical[t] = price(v)
	return f
}

func (f *staticFeed) Update(context.Context) error {
	f.updates.Add(1)
	return f.updateErr
}

func (f *staticFeed) CurrentPrice() *big.Int { return cloneInt(f.current) }

func (f *staticFeed) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	if _, err := parseAncillary(ancillary); err != nil {
		return nil, err
	}
	if f.histErr != nil {
		return nil, f.histErr
	}
	v, ok := f.historical[t]
	if !ok {
		return nil, feederr.NotFound("no price at %d", t)
	}
	return cloneInt(v), nil
}

func (f *staticFeed) LastUpdateTime() (int64, bool) { return f.lastUpdate, f.updated }
func (f *staticFeed) PriceFeedDecimals() int        { return f.decimals }
func (f *staticFeed) Lookback() int64               { return f.lookback }
