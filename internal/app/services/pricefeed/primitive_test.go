package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
)

func samplePeriods() []domain.PricePeriod {
	return []domain.PricePeriod{
		period(852, 912, "1.0", "1.1"),
		period(912, 972, "1.1", "1.2"),
		period(972, 1000, "1.2", "1.3"),
	}
}

func newTestPrimitive(src Source, clock Clock, opts PrimitiveOptions) *PrimitiveFeed {
	if opts.Name == "" {
		opts.Name = "test"
	}
	return NewPrimitiveFeed(src, clock, opts, quietLogger())
}

func TestPrimitiveFeed_NotUpdated(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{Current: price("1")}, nil)
	f := newTestPrimitive(src, newFakeClock(1000), PrimitiveOptions{})

	assert.Nil(t, f.CurrentPrice())
	_, ok := f.LastUpdateTime()
	assert.False(t, ok)
	_, err := f.HistoricalPrice(900, nil)
	assert.True(t, feederr.IsNotFound(err))
	_, err = f.HistoricalPrice(LatestTime, nil)
	assert.True(t, feederr.IsNotFound(err))
}

func TestPrimitiveFeed_UpdateAndRead(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{Current: price("1.35"), Periods: samplePeriods()}, nil)
	clock := newFakeClock(1000)
	f := newTestPrimitive(src, clock, PrimitiveOptions{Lookback: 500})

	require.NoError(t, f.Update(context.Background()))
	assertPrice(t, "1.35", f.CurrentPrice())
	last, ok := f.LastUpdateTime()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), last)

	got, err := f.HistoricalPrice(930, nil)
	require.NoError(t, err)
	assertPrice(t, "1.2", got)

	got, err = f.HistoricalPrice(LatestTime, nil)
	require.NoError(t, err)
	assertPrice(t, "1.35", got)

	require.Len(t, src.reqs, 1)
	assert.Equal(t, int64(1000), src.reqs[0].Now)
	assert.Equal(t, int64(500), src.reqs[0].Lookback)
}

func TestPrimitiveFeed_Debounce(t *testing.T) {
	src := (&scriptedSource{}).
		push(Sample{Current: price("1")}, nil).
		push(Sample{Current: price("2")}, nil)
	clock := newFakeClock(1000)
	f := newTestPrimitive(src, clock, PrimitiveOptions{MinTimeBetweenUpdates: 60})

	require.NoError(t, f.Update(context.Background()))
	clock.Advance(59)
	require.NoError(t, f.Update(context.Background()))
	assert.Equal(t, 1, src.Calls())
	assertPrice(t, "1", f.CurrentPrice())

	clock.Advance(1)
	require.NoError(t, f.Update(context.Background()))
	assert.Equal(t, 2, src.Calls())
	assertPrice(t, "2", f.CurrentPrice())
	last, _ := f.LastUpdateTime()
	assert.Equal(t, int64(1060), last)
}

func TestPrimitiveFeed_FailedUpdateKeepsState(t *testing.T) {
	boom := feederr.NewFetchError(feederr.FetchStatus, "http://x", errors.New("503"))
	src := (&scriptedSource{}).
		push(Sample{Current: price("1"), Periods: samplePeriods()}, nil).
		push(Sample{}, boom)
	clock := newFakeClock(1000)
	f := newTestPrimitive(src, clock, PrimitiveOptions{MinTimeBetweenUpdates: 30})

	require.NoError(t, f.Update(context.Background()))
	clock.Advance(30)
	err := f.Update(context.Background())
	require.Error(t, err)
	assert.True(t, feederr.IsFetch(err))
	assert.Equal(t, feederr.FetchStatus, feederr.KindOf(err))

	assertPrice(t, "1", f.CurrentPrice())
	last, _ := f.LastUpdateTime()
	assert.Equal(t, int64(1000), last)

	// A failed fetch does not start the debounce window.
	clock.Advance(1)
	require.Error(t, f.Update(context.Background()))
	assert.Equal(t, 3, src.Calls())
}

func TestPrimitiveFeed_MissingCurrentPrice(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{Periods: samplePeriods()}, nil)
	f := newTestPrimitive(src, newFakeClock(1000), PrimitiveOptions{})
	err := f.Update(context.Background())
	assert.Equal(t, feederr.FetchMissingField, feederr.KindOf(err))
	_, ok := f.LastUpdateTime()
	assert.False(t, ok)
}

func TestPrimitiveFeed_TWAP(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{Current: price("1.3"), Periods: samplePeriods()}, nil)
	f := newTestPrimitive(src, newFakeClock(1000), PrimitiveOptions{TwapLength: 120})
	require.NoError(t, f.Update(context.Background()))

	got, err := f.HistoricalPrice(1000, nil)
	require.NoError(t, err)
	assert.Equal(t, "1196666666666666666", got.String())

	// Ancillary data overrides the configured window for one request.
	got, err = f.HistoricalPrice(1000, []byte("twapLength:0"))
	require.NoError(t, err)
	assertPrice(t, "1.3", got)

	got, err = f.HistoricalPrice(1000, []byte("twapLength:28"))
	require.NoError(t, err)
	assertPrice(t, "1.3", got)

	_, err = f.HistoricalPrice(1000, []byte("twapLength"))
	assert.True(t, feederr.IsParse(err))
}

func TestPrimitiveFeed_AfterLastPolicy(t *testing.T) {
	sample := Sample{Current: price("1.5"), Periods: samplePeriods()}

	strict := newTestPrimitive((&scriptedSource{}).push(sample, nil), newFakeClock(1100), PrimitiveOptions{})
	require.NoError(t, strict.Update(context.Background()))
	_, err := strict.HistoricalPrice(1050, nil)
	assert.True(t, feederr.IsNotFound(err))

	lenient := newTestPrimitive((&scriptedSource{}).push(sample, nil), newFakeClock(1100), PrimitiveOptions{
		Policy: LookupPolicy{AfterLast: AfterLastCurrent},
	})
	require.NoError(t, lenient.Update(context.Background()))
	got, err := lenient.HistoricalPrice(1050, nil)
	require.NoError(t, err)
	assertPrice(t, "1.5", got)
}

func TestPrimitiveFeed_InvertPrice(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{
		Current: price("4"),
		Periods: []domain.PricePeriod{{
			OpenTime: 0, CloseTime: 60,
			OpenPrice: price("2"), ClosePrice: price("4"),
			HighPrice: price("5"), LowPrice: price("2"),
		}},
	}, nil)
	clock := newFakeClock(100)
	f := newTestPrimitive(src, clock, PrimitiveOptions{InvertPrice: true, MinTimeBetweenUpdates: 1})
	require.NoError(t, f.Update(context.Background()))

	assertPrice(t, "0.25", f.CurrentPrice())
	got, err := f.HistoricalPrice(30, nil)
	require.NoError(t, err)
	assertPrice(t, "0.25", got)

	p := f.Periods()[0]
	assertPrice(t, "0.5", p.OpenPrice)
	assertPrice(t, "0.5", p.HighPrice)
	assertPrice(t, "0.2", p.LowPrice)

	// Sources see the raw upstream values.
	clock.Advance(10)
	require.NoError(t, f.Update(context.Background()))
	require.Len(t, src.reqs, 2)
	assertPrice(t, "4", src.reqs[1].PreviousPrice)
	assertPrice(t, "4", src.reqs[1].Previous[0].ClosePrice)
}

func TestPrimitiveFeed_InvertedZeroCandle(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{
		Current: price("2"),
		Periods: []domain.PricePeriod{
			period(100, 160, "0", "0"),
			period(160, 220, "2", "2"),
		},
	}, nil)
	f := newTestPrimitive(src, newFakeClock(300), PrimitiveOptions{InvertPrice: true, Policy: LookupPolicy{Buffer: 30}})
	require.NoError(t, f.Update(context.Background()))

	for _, ts := range []int64{100, 130} {
		got, err := f.HistoricalPrice(ts, nil)
		assert.Nil(t, got)
		assert.True(t, feederr.IsNotFound(err), "t=%d: %v", ts, err)
	}
	got, err := f.HistoricalPrice(200, nil)
	require.NoError(t, err)
	assertPrice(t, "0.5", got)

	// Zero-length TWAP requests go through the same lookup.
	_, err = f.HistoricalPrice(130, []byte("twapLength:0"))
	assert.True(t, feederr.IsNotFound(err))

	m, err := NewMedianizer("m", []Feed{f, newStatic("1").at(130, "1")}, false, quietLogger())
	require.NoError(t, err)
	got, err = m.HistoricalPrice(130, nil)
	require.NoError(t, err)
	assertPrice(t, "1", got)

	b, err := NewBasketSpread(BasketSpreadOptions{
		Name:         "spread",
		Experimental: []Feed{f},
		Baseline:     []Feed{newStatic("1").at(130, "1")},
		Decimals:     18,
	}, quietLogger())
	require.NoError(t, err)
	_, err = b.HistoricalPrice(130, nil)
	assert.True(t, feederr.IsNotFound(err))
}

func TestPrimitiveFeed_ReadersReturnCopies(t *testing.T) {
	src := (&scriptedSource{}).push(Sample{Current: price("1"), Periods: samplePeriods()}, nil)
	f := newTestPrimitive(src, newFakeClock(1000), PrimitiveOptions{})
	require.NoError(t, f.Update(context.Background()))

	f.CurrentPrice().SetInt64(7)
	f.Periods()[0].ClosePrice.SetInt64(7)
	assertPrice(t, "1", f.CurrentPrice())
	assertPrice(t, "1.1", f.Periods()[0].ClosePrice)
}

// Readers racing with updates always see a current price and history from
// the same fetch.
func TestPrimitiveFeed_AtomicState(t *testing.T) {
	var mu sync.Mutex
	n := int64(0)
	src := SourceFunc(func(_ context.Context, req SampleRequest) (Sample, error) {
		mu.Lock()
		n++
		v := big.NewInt(n)
		mu.Unlock()
		return Sample{
			Current: v,
			Periods: []domain.PricePeriod{{OpenTime: 0, CloseTime: 10, OpenPrice: v, ClosePrice: v}},
		}, nil
	})
	f := NewPrimitiveFeed(src, ClockFunc(func() int64 { return 100 }), PrimitiveOptions{Name: "race"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = f.Update(ctx)
		}
	}()

	for i := 0; i < 2000; i++ {
		st := f.state.Load()
		if !st.updated {
			continue
		}
		if st.current.Cmp(st.periods[0].ClosePrice) != 0 {
			t.Fatalf("torn state: current %s, close %s", st.current, st.periods[0].ClosePrice)
		}
	}
	wg.Wait()
}
