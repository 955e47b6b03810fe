package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/httputil"
)

// QuoteSource reads a single price from any JSON endpoint with a JSONPath
// expression. It keeps its own history from successive samples.
type QuoteSource struct {
	Fetcher  httputil.Fetcher
	URL      string
	JSONPath string
	Headers  map[string]string
	Decimals int
}

var _ Source = (*QuoteSource)(nil)

func (s *QuoteSource) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	res, err := s.Fetcher.GetJSON(ctx, s.URL, httputil.FetchOptions{Headers: s.Headers})
	if err != nil {
		return Sample{}, err
	}

	dec := json.NewDecoder(strings.NewReader(res.Raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return Sample{}, feederr.NewFetchError(feederr.FetchDecode, s.URL, err)
	}

	value, err := jsonpath.Get(s.JSONPath, doc)
	if err != nil {
		return Sample{}, feederr.MissingField(s.URL, s.JSONPath)
	}
	if list, ok := value.([]interface{}); ok {
		if len(list) != 1 {
			return Sample{}, feederr.NewFetchError(feederr.FetchMissingField, s.URL,
				fmt.Errorf("path %s matched %d values", s.JSONPath, len(list)))
		}
		value = list[0]
	}
	current, ok := decimalValue(value, s.Decimals)
	if !ok {
		return Sample{}, feederr.MissingField(s.URL, s.JSONPath)
	}
	return Sample{Current: current, Periods: accumulate(req, current)}, nil
}
