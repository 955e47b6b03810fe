package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// updateChildren updates every child concurrently and returns each child's
// error by position. One failing child never cancels its siblings.
func updateChildren(ctx context.Context, children []Feed) []error {
	errs := make([]error, len(children))
	var g errgroup.Group
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			errs[i] = child.Update(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// updateTolerant updates children and logs their failures, returning an error
// only when every child failed.
func updateTolerant(ctx context.Context, name string, children []Feed, log *logger.Logger) error {
	if len(children) == 0 {
		return nil
	}
	errs := updateChildren(ctx, children)
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		log.WithError(err).
			WithField("feed", name).
			WithField("child", i).
			Warn("child feed update failed")
	}
	if failed < len(children) {
		return nil
	}
	return fmt.Errorf("update %s: all %d children failed: %w", name, failed, errors.Join(errs...))
}

func maxLastUpdate(children []Feed) (int64, bool) {
	var (
		latest int64
		found  bool
	)
	for _, child := range children {
		if t, ok := child.LastUpdateTime(); ok && (!found || t > latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

func maxLookback(children []Feed) int64 {
	var out int64
	for _, child := range children {
		out = max(out, child.Lookback())
	}
	return out
}

// uniformDecimals returns the children's shared decimals or a config error.
func uniformDecimals(name string, children []Feed) (int, error) {
	if len(children) == 0 {
		return 0, feederr.Config("%s: at least one child feed is required", name)
	}
	decimals := children[0].PriceFeedDecimals()
	for i, child := range children[1:] {
		if d := child.PriceFeedDecimals(); d != decimals {
			return 0, feederr.Config("%s: child %d has %d decimals, expected %d", name, i+1, d, decimals)
		}
	}
	return decimals, nil
}

// historicalOf reads a child's price at t. A child answering without a value
// counts as NotFound.
func historicalOf(f Feed, t int64, ancillary []byte) (*big.Int, error) {
	v, err := f.HistoricalPrice(t, ancillary)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, feederr.NotFound("no price at %d", t)
	}
	return v, nil
}
