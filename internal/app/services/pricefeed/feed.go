// Package pricefeed implements the price feed engine: primitive feeds that poll
// upstream sources, composites that combine child feeds, historical lookup and
// TWAP over OHLC periods, and the factory that builds feed trees from config.
package pricefeed

import (
	"context"
	"math/big"
	"time"
)

// LatestTime asks HistoricalPrice for the latest known price.
const LatestTime int64 = -1

// Feed is the contract shared by primitive and composite feeds. Getters never
// block on I/O and are safe to call concurrently with Update.
type Feed interface {
	// Update refreshes the feed from upstream, honoring its debounce.
	Update(ctx context.Context) error
	// CurrentPrice returns the latest price, or nil when unset.
	CurrentPrice() *big.Int
	// HistoricalPrice returns the price at unix time t.
	HistoricalPrice(t int64, ancillary []byte) (*big.Int, error)
	// LastUpdateTime returns the time of the last successful fetch.
	LastUpdateTime() (int64, bool)
	PriceFeedDecimals() int
	// Lookback is the history window, in seconds, the feed maintains.
	Lookback() int64
}

// Clock provides the current unix time.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
