package pricefeed

import (
	"context"
	"math/big"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
)

// SampleRequest carries what a Source may need to produce the next sample.
type SampleRequest struct {
	Now      int64
	Lookback int64
	// Previous is the last published state, in upstream (non-inverted) terms.
	Previous      []domain.PricePeriod
	PreviousTime  int64
	PreviousPrice *big.Int
}

// Sample is one successful read from upstream, scaled to feed decimals.
type Sample struct {
	Current *big.Int
	Periods []domain.PricePeriod
}

// Source retrieves the current price and price history for a primitive feed.
type Source interface {
	Sample(ctx context.Context, req SampleRequest) (Sample, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req SampleRequest) (Sample, error)

func (f SourceFunc) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	if f == nil {
		return Sample{}, nil
	}
	return f(ctx, req)
}

// accumulate appends a period spanning the previous sample to now and drops
// periods closing before now-lookback. Sources without upstream history use
// it to build their own series.
func accumulate(req SampleRequest, current *big.Int) []domain.PricePeriod {
	open := req.PreviousPrice
	openTime := req.PreviousTime
	if open == nil || openTime <= 0 || openTime >= req.Now {
		open = current
		openTime = req.Now - 1
	}
	cutoff := req.Now - req.Lookback
	periods := make([]domain.PricePeriod, 0, len(req.Previous)+1)
	for _, p := range req.Previous {
		if req.Lookback > 0 && p.CloseTime < cutoff {
			continue
		}
		periods = append(periods, p.Clone())
	}
	return append(periods, domain.PricePeriod{
		OpenTime:   openTime,
		CloseTime:  req.Now,
		OpenPrice:  cloneInt(open),
		ClosePrice: cloneInt(current),
	})
}
