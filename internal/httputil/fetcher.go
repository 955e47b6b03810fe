package httputil

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// FetchOptions tunes a single GetJSON request.
type FetchOptions struct {
	Headers map[string]string
	// Timeout bounds the request; zero uses the fetcher's default.
	Timeout time.Duration
}

// Fetcher returns parsed JSON for a URL. Failures are *feederr.FetchError
// values classified by kind.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, opts FetchOptions) (gjson.Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, opts FetchOptions) (gjson.Result, error)

func (f FetcherFunc) GetJSON(ctx context.Context, url string, opts FetchOptions) (gjson.Result, error) {
	return f(ctx, url, opts)
}
