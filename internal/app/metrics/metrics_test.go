package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/":                        "/",
		"/health":                  "/health",
		"/feeds":                   "/feeds",
		"/feeds/BTCUSD":            "/feeds/:name",
		"/feeds/BTCUSD/history":    "/feeds/:name/history",
		"/feeds/ETHUSD/price/":     "/feeds/:name/price",
		"/feeds/ETHUSD/snapshots/": "/feeds/:name/snapshots",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordFeedUpdate(t *testing.T) {
	before := testutil.ToFloat64(feedUpdates.WithLabelValues("metrics-test", "error"))
	RecordFeedUpdate("metrics-test", 10*time.Millisecond, errors.New("boom"))
	after := testutil.ToFloat64(feedUpdates.WithLabelValues("metrics-test", "error"))
	if after != before+1 {
		t.Fatalf("expected error counter to increase, before=%v after=%v", before, after)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordFetchError("timeout")
	RecordCacheLookup(true)
	RecordRefresherTick(nil)

	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feeds/X", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"feed_layer_fetch_errors_total",
		"feed_layer_fetch_cache_total",
		"feed_layer_refresher_ticks_total",
		`feed_layer_http_requests_total{method="GET",path="/feeds/:name",status="418"}`,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
