// Package api exposes indexing control, statistics and search over HTTP.
// Every response carries a boolean "result"; failures add an "error" text
// that is safe to show to the caller.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/logger"
)

// Indexer controls crawls and single-page indexing.
type Indexer interface {
	StartIndexing(ctx context.Context) error
	StopIndexing(ctx context.Context) error
	IndexSinglePage(ctx context.Context, url string) error
}

type Searcher interface {
	Search(ctx context.Context, query, site string, offset, limit int) (*search.Response, error)
}

type StatisticsProvider interface {
	Get(ctx context.Context) (*statistics.Statistics, error)
}

// CacheStats reports query cache hits and misses.
type CacheStats interface {
	Stats() (hits, misses int64)
}

type Handler struct {
	indexer  Indexer
	searcher Searcher
	stats    StatisticsProvider
	cache    CacheStats
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewHandler builds the API handler. cache may be nil when caching is off.
func NewHandler(indexer Indexer, searcher Searcher, stats StatisticsProvider, cache CacheStats, cfg config.SearchConfig) *Handler {
	return &Handler{
		indexer:  indexer,
		searcher: searcher,
		stats:    stats,
		cache:    cache,
		cfg:      cfg,
		logger:   slog.Default().With("component", "api"),
	}
}

type resultResponse struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

type searchResponse struct {
	Result bool            `json:"result"`
	Count  int             `json:"count"`
	Data   []search.Result `json:"data"`
}

type statisticsResponse struct {
	Result     bool                   `json:"result"`
	Statistics *statistics.Statistics `json:"statistics"`
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Get(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statisticsResponse{Result: true, Statistics: stats})
}

func (h *Handler) StartIndexing(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.indexer.StartIndexing(r.Context()))
}

func (h *Handler) StopIndexing(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.indexer.StopIndexing(r.Context()))
}

// IndexPage reads the page address from the "url" form or query value.
func (h *Handler) IndexPage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.indexer.IndexSinglePage(r.Context(), r.FormValue("url")))
}

// Search serves GET /api/search?query=&site=&offset=0&limit=20. The limit is
// capped at the configured maximum.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), 0, "offset")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), h.cfg.DefaultLimit, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit <= 0 {
		limit = h.cfg.DefaultLimit
	}
	if h.cfg.MaxLimit > 0 && limit > h.cfg.MaxLimit {
		limit = h.cfg.MaxLimit
	}

	resp, err := h.searcher.Search(r.Context(), q.Get("query"), q.Get("site"), offset, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Result: true, Count: resp.Count, Data: resp.Data})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"result": true, "enabled": h.cache != nil}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		var hitRate float64
		if total := hits + misses; total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		body["hits"] = hits
		body["misses"] = misses
		body["hitRate"] = hitRate
	}
	h.writeJSON(w, http.StatusOK, body)
}

func intParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be an integer", name)
	}
	return v, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resultResponse{Result: true})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, resultResponse{Result: false, Error: apperrors.Message(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
