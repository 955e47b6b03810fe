package pricefeed

import (
	"math/big"
	"time"
)

// PricePeriod is one OHLC candle. Prices are fixed-point values scaled to the
// owning feed's decimals. High, Low and Volume are optional.
type PricePeriod struct {
	OpenTime   int64
	CloseTime  int64
	OpenPrice  *big.Int
	ClosePrice *big.Int
	HighPrice  *big.Int
	LowPrice   *big.Int
	Volume     *big.Int
}

// Contains reports whether t lies within [OpenTime, CloseTime].
func (p PricePeriod) Contains(t int64) bool {
	return t >= p.OpenTime && t <= p.CloseTime
}

// Clone returns a deep copy so callers cannot mutate stored prices.
func (p PricePeriod) Clone() PricePeriod {
	return PricePeriod{
		OpenTime:   p.OpenTime,
		CloseTime:  p.CloseTime,
		OpenPrice:  cloneInt(p.OpenPrice),
		ClosePrice: cloneInt(p.ClosePrice),
		HighPrice:  cloneInt(p.HighPrice),
		LowPrice:   cloneInt(p.LowPrice),
		Volume:     cloneInt(p.Volume),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Snapshot captures the current price of a named feed tree at collection time.
type Snapshot struct {
	ID             string    `json:"id" db:"id"`
	Feed           string    `json:"feed" db:"feed"`
	Price          string    `json:"price" db:"price"`
	Decimals       int       `json:"decimals" db:"decimals"`
	LastUpdateTime int64     `json:"last_update_time" db:"last_update_time"`
	CollectedAt    time.Time `json:"collected_at" db:"collected_at"`
}
