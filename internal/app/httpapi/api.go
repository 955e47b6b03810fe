// Package httpapi exposes the price feed engine over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/feed_layer/internal/app/metrics"
	"github.com/R3E-Network/feed_layer/internal/app/services/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/middleware"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// Handler serves feed prices, history and snapshots.
type Handler struct {
	feeds  *pricefeed.Service
	log    *logger.Logger
	router *mux.Router
}

// NewHandler returns the instrumented HTTP API for svc. Browser clients from
// corsOrigins may read it.
func NewHandler(svc *pricefeed.Service, log *logger.Logger, corsOrigins ...string) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &Handler{feeds: svc, log: log, router: mux.NewRouter()}
	h.registerRoutes()

	var handler http.Handler = h.router
	handler = middleware.NewTracingMiddleware(log).Handler(handler)
	handler = middleware.NewCORSMiddleware(corsOrigins).Handler(handler)
	return metrics.InstrumentHandler(handler)
}

func (h *Handler) registerRoutes() {
	h.router.HandleFunc("/health", h.handleHealth).Methods("GET")
	h.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	h.router.HandleFunc("/feeds", h.handleListFeeds).Methods("GET")
	h.router.HandleFunc("/feeds/{name}", h.handleGetFeed).Methods("GET")
	h.router.HandleFunc("/feeds/{name}/price", h.handleGetPrice).Methods("GET")
	h.router.HandleFunc("/feeds/{name}/history", h.handleGetHistory).Methods("GET")
	h.router.HandleFunc("/feeds/{name}/snapshots", h.handleListSnapshots).Methods("GET")
	h.router.HandleFunc("/feeds/{name}/update", h.handleUpdate).Methods("POST")
}
