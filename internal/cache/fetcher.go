package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/R3E-Network/feed_layer/internal/app/metrics"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/httputil"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// sharedFetchTimeout caps a collapsed upstream fetch.
const sharedFetchTimeout = time.Minute

// Fetcher serves repeated requests for the same URL and headers from a Store
// for TTL, and collapses concurrent identical requests into one.
type Fetcher struct {
	next  httputil.Fetcher
	store Store
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
}

var _ httputil.Fetcher = (*Fetcher)(nil)

// NewFetcher wraps next. A non-positive ttl disables caching but keeps
// request collapsing.
func NewFetcher(next httputil.Fetcher, store Store, ttl time.Duration, log *logger.Logger) *Fetcher {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.NewDefault("fetch-cache")
	}
	return &Fetcher{next: next, store: store, ttl: ttl, log: log}
}

// Key derives the cache key of a request.
func Key(url string, headers map[string]string) string {
	h := sha256.New()
	h.Write([]byte(url))
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(headers[k]))
	}
	return "fetch:" + hex.EncodeToString(h.Sum(nil))
}

func (f *Fetcher) GetJSON(ctx context.Context, url string, opts httputil.FetchOptions) (gjson.Result, error) {
	key := Key(url, opts.Headers)
	if f.ttl > 0 {
		body, ok, err := f.store.Get(ctx, key)
		if err != nil {
			f.log.WithError(err).Warn("cache read failed")
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			return gjson.ParseBytes(body), nil
		}
	}

	ch := f.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, detached from the first caller.
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		res, err := f.next.GetJSON(shared, url, opts)
		if err != nil {
			return gjson.Result{}, err
		}
		if f.ttl > 0 {
			if err := f.store.Set(shared, key, []byte(res.Raw), f.ttl); err != nil {
				f.log.WithError(err).Warn("cache write failed")
			}
		}
		return res, nil
	})
	select {
	case <-ctx.Done():
		kind := feederr.FetchNetwork
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = feederr.FetchTimeout
		}
		return gjson.Result{}, feederr.NewFetchError(kind, "", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return gjson.Result{}, r.Err
		}
		return r.Val.(gjson.Result), nil
	}
}
