package pricefeed

import (
	"context"
	"math/big"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
)

// Inverter reports 1/p for every price of the wrapped feed. Zero and unset
// prices invert to unset.
type Inverter struct {
	feed Feed
}

var _ Feed = (*Inverter)(nil)

func NewInverter(feed Feed) *Inverter { return &Inverter{feed: feed} }

func (i *Inverter) Update(ctx context.Context) error { return i.feed.Update(ctx) }

func (i *Inverter) CurrentPrice() *big.Int {
	return fixed.Invert(i.feed.CurrentPrice(), i.feed.PriceFeedDecimals())
}

func (i *Inverter) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	v, err := i.feed.HistoricalPrice(t, ancillary)
	if err != nil {
		return nil, err
	}
	out := fixed.Invert(v, i.feed.PriceFeedDecimals())
	if out == nil {
		return nil, feederr.NotFound("cannot invert zero price at %d", t)
	}
	return out, nil
}

func (i *Inverter) LastUpdateTime() (int64, bool) { return i.feed.LastUpdateTime() }

func (i *Inverter) PriceFeedDecimals() int { return i.feed.PriceFeedDecimals() }

func (i *Inverter) Lookback() int64 { return i.feed.Lookback() }
