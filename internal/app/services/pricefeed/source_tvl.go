package pricefeed

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/internal/httputil"
)

// DefaultDefiPulseURL is the DeFi Pulse data API endpoint.
const DefaultDefiPulseURL = "https://data-api.defipulse.com/api/v1/defipulse/api"

var tvlUnit = decimal.New(1, 9)

// tvlScale is the working precision for raw TVL totals before rounding.
const tvlScale = 18

// TVLSource reports total DeFi value locked, in billions, rounded to
// Precision decimals. It keeps its own history from successive samples.
type TVLSource struct {
	Fetcher   httputil.Fetcher
	BaseURL   string
	APIKey    string
	Precision int
	Decimals  int
}

var _ Source = (*TVLSource)(nil)

func (s *TVLSource) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultDefiPulseURL
	}
	u := base + "/MarketData"
	if s.APIKey != "" {
		u += "?" + url.Values{"api-key": {s.APIKey}}.Encode()
	}
	res, err := s.Fetcher.GetJSON(ctx, u, httputil.FetchOptions{})
	if err != nil {
		return Sample{}, err
	}
	total, ok := decimalField(res.Get("All.total"), tvlScale)
	if !ok {
		return Sample{}, feederr.MissingField(u, "All.total")
	}
	tvl := fixed.ToDecimal(total, tvlScale).Div(tvlUnit).Round(int32(s.Precision))
	current := fixed.FromDecimal(tvl, s.Decimals)
	return Sample{Current: current, Periods: accumulate(req, current)}, nil
}
