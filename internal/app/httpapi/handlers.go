package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	feeds "github.com/R3E-Network/feed_layer/internal/app/services/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/internal/httputil"
)

// FeedSummary describes the current state of a named feed tree.
type FeedSummary struct {
	Name           string `json:"name"`
	Price          string `json:"price,omitempty"`
	Decimals       int    `json:"decimals"`
	Lookback       int64  `json:"lookback"`
	LastUpdateTime int64  `json:"last_update_time,omitempty"`
	Updated        bool   `json:"updated"`
}

// PriceResponse is a price resolved at a timestamp.
type PriceResponse struct {
	Name      string `json:"name"`
	Price     string `json:"price"`
	Raw       string `json:"raw"`
	Decimals  int    `json:"decimals"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

const maxSnapshotLimit = 1000

func summarize(name string, f feeds.Feed) FeedSummary {
	last, ok := f.LastUpdateTime()
	out := FeedSummary{
		Name:     name,
		Decimals: f.PriceFeedDecimals(),
		Lookback: f.Lookback(),
		Updated:  ok,
	}
	if ok {
		out.LastUpdateTime = last
	}
	if p := f.CurrentPrice(); p != nil {
		out.Price = fixed.String(p, f.PriceFeedDecimals())
	}
	return out
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case feederr.IsNotFound(err):
		return http.StatusNotFound
	case feederr.IsParse(err):
		return http.StatusBadRequest
	case feederr.IsFetch(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("request failed")
	}
	httputil.WriteError(w, status, err.Error())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"status": "ok",
		"feeds":  len(h.feeds.Names()),
	})
}

func (h *Handler) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	names := h.feeds.Names()
	out := make([]FeedSummary, 0, len(names))
	for _, name := range names {
		f, err := h.feeds.Get(name)
		if err != nil {
			continue
		}
		out = append(out, summarize(name, f))
	}
	httputil.WriteSuccess(w, out)
}

func (h *Handler) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, err := h.feeds.Get(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, summarize(name, f))
}

func (h *Handler) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, err := h.feeds.Get(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := f.CurrentPrice()
	if p == nil {
		h.fail(w, r, feederr.NotFound("%s has no current price", name))
		return
	}
	last, _ := f.LastUpdateTime()
	httputil.WriteSuccess(w, PriceResponse{
		Name:      name,
		Price:     fixed.String(p, f.PriceFeedDecimals()),
		Raw:       p.String(),
		Decimals:  f.PriceFeedDecimals(),
		Timestamp: last,
	})
}

// handleGetHistory resolves ?timestamp=<unix|latest> with optional
// ?ancillary= override text.
func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, err := h.feeds.Get(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("timestamp"))
	var ts int64
	switch raw {
	case "":
		httputil.WriteError(w, http.StatusBadRequest, "timestamp is required")
		return
	case "latest":
		ts = feeds.LatestTime
	default:
		ts, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || ts < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "timestamp must be a unix time or \"latest\"")
			return
		}
	}

	p, err := f.HistoricalPrice(ts, []byte(r.URL.Query().Get("ancillary")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ts == feeds.LatestTime {
		ts, _ = f.LastUpdateTime()
	}
	httputil.WriteSuccess(w, PriceResponse{
		Name:      name,
		Price:     fixed.String(p, f.PriceFeedDecimals()),
		Raw:       p.String(),
		Decimals:  f.PriceFeedDecimals(),
		Timestamp: ts,
	})
}

func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSnapshotLimit)
	}
	snaps, err := h.feeds.ListSnapshots(r.Context(), name, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []pricefeed.Snapshot{}
	}
	httputil.WriteSuccess(w, snaps)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.feeds.Update(r.Context(), name); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.feeds.Get(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, summarize(name, f))
}
