package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// BasketSpreadOptions configures a BasketSpread.
type BasketSpreadOptions struct {
	Name         string
	Experimental []Feed
	Baseline     []Feed
	// Denominator, when set, normalizes the spread.
	Denominator Feed
	// Mode is domain.SpreadRatio (default) or domain.SpreadDifference.
	Mode     string
	Decimals int
}

// BasketSpread compares the mean of an experimental basket with the mean of a
// baseline basket, either as a ratio or as a floored difference offset by one.
type BasketSpread struct {
	opts     BasketSpreadOptions
	children []Feed
	log      *logger.Logger
}

var _ Feed = (*BasketSpread)(nil)

// NewBasketSpread requires non-empty baskets and a known mode.
func NewBasketSpread(opts BasketSpreadOptions, log *logger.Logger) (*BasketSpread, error) {
	if len(opts.Experimental) == 0 || len(opts.Baseline) == 0 {
		return nil, feederr.Config("%s: experimental and baseline baskets must not be empty", opts.Name)
	}
	switch opts.Mode {
	case "":
		opts.Mode = domain.SpreadRatio
	case domain.SpreadRatio, domain.SpreadDifference:
	default:
		return nil, feederr.Config("%s: unknown spread mode %q", opts.Name, opts.Mode)
	}
	if opts.Decimals <= 0 {
		opts.Decimals = DefaultDecimals
	}
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	children := make([]Feed, 0, len(opts.Experimental)+len(opts.Baseline)+1)
	children = append(children, opts.Experimental...)
	children = append(children, opts.Baseline...)
	if opts.Denominator != nil {
		children = append(children, opts.Denominator)
	}
	return &BasketSpread{opts: opts, children: children, log: log}, nil
}

func (b *BasketSpread) Update(ctx context.Context) error {
	return updateTolerant(ctx, b.opts.Name, b.children, b.log)
}

type priceOf func(Feed) (*big.Int, error)

func (b *BasketSpread) CurrentPrice() *big.Int {
	v, err := b.compute(func(f Feed) (*big.Int, error) {
		if p := f.CurrentPrice(); p != nil {
			return p, nil
		}
		return nil, feederr.NotFound("no current price")
	})
	if err != nil {
		return nil
	}
	return v
}

func (b *BasketSpread) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	return b.compute(func(f Feed) (*big.Int, error) {
		return historicalOf(f, t, ancillary)
	})
}

func (b *BasketSpread) compute(get priceOf) (*big.Int, error) {
	exp, err := b.basketMean("experimental", b.opts.Experimental, get)
	if err != nil {
		return nil, err
	}
	base, err := b.basketMean("baseline", b.opts.Baseline, get)
	if err != nil {
		return nil, err
	}

	var spread *big.Int
	if b.opts.Mode == domain.SpreadDifference {
		spread = new(big.Int).Sub(exp, base)
		spread.Add(spread, fixed.Scale(b.opts.Decimals))
		if spread.Sign() < 0 {
			spread.SetInt64(0)
		}
	} else {
		spread, err = fixed.Div(exp, base, b.opts.Decimals)
		if err != nil {
			return nil, feederr.NotFound("%s: baseline mean is zero", b.opts.Name)
		}
	}

	if b.opts.Denominator == nil {
		return spread, nil
	}
	denom, err := b.converted(b.opts.Denominator, get)
	if err != nil {
		return nil, fmt.Errorf("%s denominator: %w", b.opts.Name, err)
	}
	out, err := fixed.Div(spread, denom, b.opts.Decimals)
	if err != nil {
		return nil, feederr.NotFound("%s: denominator price is zero", b.opts.Name)
	}
	return out, nil
}

func (b *BasketSpread) converted(f Feed, get priceOf) (*big.Int, error) {
	v, err := get(f)
	if err != nil {
		return nil, err
	}
	return fixed.ConvertDecimals(v, f.PriceFeedDecimals(), b.opts.Decimals), nil
}

// basketMean averages the basket members that can be priced.
func (b *BasketSpread) basketMean(label string, basket []Feed, get priceOf) (*big.Int, error) {
	values := make([]*big.Int, 0, len(basket))
	var errs []error
	for _, f := range basket {
		v, err := b.converted(f, get)
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
		return nil, feederr.NotFound("%s: %s basket has no prices: %v", b.opts.Name, label, errors.Join(errs...))
	}
	return fixed.Mean(values), nil
}

func (b *BasketSpread) LastUpdateTime() (int64, bool) { return maxLastUpdate(b.children) }

func (b *BasketSpread) PriceFeedDecimals() int { return b.opts.Decimals }

func (b *BasketSpread) Lookback() int64 { return maxLookback(b.children) }
