package pricefeed

import (
	"math/big"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
)

// AfterLastPolicy selects what a primitive feed answers for timestamps past
// its last candle.
type AfterLastPolicy string

const (
	AfterLastNotFound AfterLastPolicy = domain.AfterLastNotFound
	AfterLastCurrent  AfterLastPolicy = domain.AfterLastCurrent
)

// LookupPolicy configures historical lookups of a primitive feed.
type LookupPolicy struct {
	// Buffer is the tolerance, in seconds, for matching a timestamp to a
	// candle that does not contain it.
	Buffer    int64
	AfterLast AfterLastPolicy
}

// Lookup returns the price at t from periods ordered by close time.
//
// A timestamp inside a period resolves to that period's close price, except
// at or before the first open where the first open price is used. When
// several periods contain t the earliest wins. Outside every period, a
// positive buffer lets the latest period closing within buffer seconds before
// t answer with its close price, or failing that the earliest period opening
// within buffer seconds after t answer with its open price.
func Lookup(periods []domain.PricePeriod, t, buffer int64) (*big.Int, error) {
	if len(periods) == 0 {
		return nil, feederr.NotFound("no price periods")
	}
	if buffer < 0 {
		buffer = 0
	}
	first, last := periods[0], periods[len(periods)-1]
	if t < first.OpenTime-buffer {
		return nil, feederr.NotFound("timestamp %d precedes first period opening at %d", t, first.OpenTime)
	}
	if t > last.CloseTime+buffer {
		return nil, feederr.NotFound("timestamp %d follows last period closing at %d", t, last.CloseTime)
	}
	if t <= first.OpenTime {
		return priced(first.OpenPrice, t)
	}
	for _, p := range periods {
		if p.Contains(t) {
			return priced(p.ClosePrice, t)
		}
	}
	if buffer == 0 {
		return nil, feederr.NotFound("no period contains timestamp %d", t)
	}

	before, after := -1, -1
	for i, p := range periods {
		if p.CloseTime <= t && p.CloseTime+buffer >= t {
			if before < 0 || p.CloseTime >= periods[before].CloseTime {
				before = i
			}
		}
		if p.OpenTime >= t && p.OpenTime-buffer <= t {
			if after < 0 || p.OpenTime < periods[after].OpenTime {
				after = i
			}
		}
	}
	switch {
	case before >= 0:
		return priced(periods[before].ClosePrice, t)
	case after >= 0:
		return priced(periods[after].OpenPrice, t)
	default:
		return nil, feederr.NotFound("no period within %ds of timestamp %d", buffer, t)
	}
}

// priced copies v, or reports NotFound when the chosen period has no price,
// as with a zero price that could not be inverted.
func priced(v *big.Int, t int64) (*big.Int, error) {
	if v == nil {
		return nil, feederr.NotFound("no price at timestamp %d", t)
	}
	return cloneInt(v), nil
}

// TWAP returns the close prices of periods averaged over
// [ref-length, ref], each weighted by its overlap with the window in seconds.
// Uncovered gaps carry no weight. A zero length falls back to Lookup with
// the given buffer.
func TWAP(periods []domain.PricePeriod, ref, length, buffer int64) (*big.Int, error) {
	if length <= 0 {
		return Lookup(periods, ref, buffer)
	}
	start := ref - length
	sum := new(big.Int)
	var total int64
	for _, p := range periods {
		overlap := min(p.CloseTime, ref) - max(p.OpenTime, start)
		if overlap <= 0 || p.ClosePrice == nil {
			continue
		}
		sum.Add(sum, new(big.Int).Mul(p.ClosePrice, big.NewInt(overlap)))
		total += overlap
	}
	if total == 0 {
		return nil, feederr.NotFound("no periods overlap window [%d, %d]", start, ref)
	}
	return sum.Quo(sum, big.NewInt(total)), nil
}
