package pricefeed

import (
	"context"
	"errors"
	"math/big"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// Medianizer reports the median, or mean, of its children's prices. Children
// without a value are left out of the combination.
type Medianizer struct {
	name        string
	children    []Feed
	computeMean bool
	decimals    int
	log         *logger.Logger
}

var _ Feed = (*Medianizer)(nil)

// NewMedianizer requires at least one child and uniform child decimals.
func NewMedianizer(name string, children []Feed, computeMean bool, log *logger.Logger) (*Medianizer, error) {
	decimals, err := uniformDecimals(name, children)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	return &Medianizer{name: name, children: children, computeMean: computeMean, decimals: decimals, log: log}, nil
}

func (m *Medianizer) Update(ctx context.Context) error {
	return updateTolerant(ctx, m.name, m.children, m.log)
}

func (m *Medianizer) combine(values []*big.Int) *big.Int {
	if m.computeMean {
		return fixed.Mean(values)
	}
	return fixed.Median(values)
}

func (m *Medianizer) CurrentPrice() *big.Int {
	values := make([]*big.Int, 0, len(m.children))
	for _, child := range m.children {
		if v := child.CurrentPrice(); v != nil {
			values = append(values, v)
		}
	}
	return m.combine(values)
}

// HistoricalPrice combines the children that can price t. Parse errors in the
// ancillary data fail the request outright.
func (m *Medianizer) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	values := make([]*big.Int, 0, len(m.children))
	var errs []error
	for _, child := range m.children {
		v, err := historicalOf(child, t, ancillary)
		if err != nil {
			if feederr.IsParse(err) {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, feederr.NotFound("%s: no child could price %d: %v", m.name, t, errors.Join(errs...))
	}
	return m.combine(values), nil
}

func (m *Medianizer) LastUpdateTime() (int64, bool) { return maxLastUpdate(m.children) }

func (m *Medianizer) PriceFeedDecimals() int { return m.decimals }

func (m *Medianizer) Lookback() int64 { return maxLookback(m.children) }
