package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/internal/httputil"
)

// DefaultCryptowatchURL is the public Cryptowatch REST endpoint.
const DefaultCryptowatchURL = "https://api.cryptowat.ch"

// OHLCSource reads spot price and OHLC candles from a Cryptowatch-style API.
type OHLCSource struct {
	Fetcher  httputil.Fetcher
	BaseURL  string
	Exchange string
	Pair     string
	APIKey   string
	// Period is the candle length in seconds.
	Period   int64
	Decimals int
	Headers  map[string]string
}

var _ Source = (*OHLCSource)(nil)

// Sample fetches the spot price and candle history concurrently and fails
// unless both succeed.
func (s *OHLCSource) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	var (
		current *big.Int
		periods []domain.PricePeriod
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.fetchPrice(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		periods, err = s.fetchHistory(gctx, req.Now-req.Lookback)
		return err
	})
	if err := g.Wait(); err != nil {
		return Sample{}, err
	}
	return Sample{Current: current, Periods: periods}, nil
}

func (s *OHLCSource) marketURL(suffix string, query url.Values) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultCryptowatchURL
	}
	if s.APIKey != "" {
		query.Set("apikey", s.APIKey)
	}
	u := fmt.Sprintf("%s/markets/%s/%s/%s", base, url.PathEscape(s.Exchange), url.PathEscape(s.Pair), suffix)
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func (s *OHLCSource) fetchPrice(ctx context.Context) (*big.Int, error) {
	u := s.marketURL("price", url.Values{})
	res, err := s.Fetcher.GetJSON(ctx, u, httputil.FetchOptions{Headers: s.Headers})
	if err != nil {
		return nil, err
	}
	price, ok := decimalField(res.Get("result.price"), s.Decimals)
	if !ok {
		return nil, feederr.MissingField(u, "result.price")
	}
	return price, nil
}

func (s *OHLCSource) fetchHistory(ctx context.Context, after int64) ([]domain.PricePeriod, error) {
	period := strconv.FormatInt(s.Period, 10)
	u := s.marketURL("ohlc", url.Values{
		"after":   {strconv.FormatInt(after, 10)},
		"periods": {period},
	})
	res, err := s.Fetcher.GetJSON(ctx, u, httputil.FetchOptions{Headers: s.Headers})
	if err != nil {
		return nil, err
	}
	candles := res.Get("result." + period)
	if !candles.IsArray() {
		return nil, feederr.MissingField(u, "result."+period)
	}

	var periods []domain.PricePeriod
	for i, c := range candles.Array() {
		p, ok := s.candle(c)
		if !ok {
			return nil, feederr.MissingField(u, fmt.Sprintf("result.%s[%d]", period, i))
		}
		if p.CloseTime < after {
			continue
		}
		periods = append(periods, p)
	}
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].CloseTime < periods[j].CloseTime })
	return periods, nil
}

// candle decodes [closeTime, open, high, low, close, volume, ...].
func (s *OHLCSource) candle(c gjson.Result) (domain.PricePeriod, bool) {
	fields := c.Array()
	if len(fields) < 5 {
		return domain.PricePeriod{}, false
	}
	closeTime := fields[0].Int()
	if fields[0].Type != gjson.Number || closeTime <= 0 {
		return domain.PricePeriod{}, false
	}
	open, ok1 := decimalField(fields[1], s.Decimals)
	high, ok2 := decimalField(fields[2], s.Decimals)
	low, ok3 := decimalField(fields[3], s.Decimals)
	closePrice, ok4 := decimalField(fields[4], s.Decimals)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.PricePeriod{}, false
	}
	p := domain.PricePeriod{
		OpenTime:   closeTime - s.Period,
		CloseTime:  closeTime,
		OpenPrice:  open,
		ClosePrice: closePrice,
		HighPrice:  high,
		LowPrice:   low,
	}
	if len(fields) > 5 {
		p.Volume, _ = decimalField(fields[5], s.Decimals)
	}
	return p, true
}

// decimalField converts a JSON number or numeric string to a fixed-point
// value without passing through float64.
func decimalField(res gjson.Result, decimals int) (*big.Int, bool) {
	var text string
	switch res.Type {
	case gjson.Number:
		text = res.Raw
	case gjson.String:
		text = res.Str
	default:
		return nil, false
	}
	v, err := fixed.FromString(text, decimals)
	if err != nil {
		return nil, false
	}
	return v, true
}

// decimalValue converts a decoded JSON value to a fixed-point value.
func decimalValue(v interface{}, decimals int) (*big.Int, bool) {
	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = val
	case float64:
		text = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		text = strconv.Itoa(val)
	case int64:
		text = strconv.FormatInt(val, 10)
	default:
		return nil, false
	}
	out, err := fixed.FromString(text, decimals)
	if err != nil {
		return nil, false
	}
	return out, true
}
