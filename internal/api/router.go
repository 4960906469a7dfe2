package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/middleware"
)

// RouterOptions carries the optional collaborators of the router. Nil
// fields switch the matching feature off.
type RouterOptions struct {
	Metrics         *metrics.Metrics
	Limiter         *pkgmw.Limiter
	SearchRateLimit int
	Analytics       *analytics.Handler
	Health          *health.Checker
	RequestTimeout  time.Duration
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	GET    /api/statistics      index totals and per-site detail
//	GET    /api/startIndexing   crawl every configured site
//	GET    /api/stopIndexing    stop running crawls
//	POST   /api/indexPage       fetch and index one page (url=...)
//	GET    /api/search          ranked search (query, site, offset, limit)
//	GET    /api/analytics       aggregated search and indexing analytics
//	GET    /api/cache/stats     query cache hit rate
//	GET    /health/live
//	GET    /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → RealIP → Recoverer → Metrics → CORS → Timeout → handler
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		r.Use(pkgmw.Metrics(opts.Metrics))
	}
	r.Use(pkgmw.CORS(pkgmw.DefaultCORSConfig()))

	if opts.Health != nil {
		r.Get("/health/live", opts.Health.LiveHandler())
		r.Get("/health/ready", opts.Health.ReadyHandler())
	}

	r.Route("/api", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(pkgmw.Timeout(opts.RequestTimeout))
		}
		r.Get("/statistics", h.Statistics)
		r.Get("/startIndexing", h.StartIndexing)
		r.Get("/stopIndexing", h.StopIndexing)
		r.Post("/indexPage", h.IndexPage)
		r.Get("/cache/stats", h.CacheStats)
		if opts.Analytics != nil {
			r.Get("/analytics", opts.Analytics.Stats)
		}
		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(pkgmw.RateLimit(opts.Limiter, opts.SearchRateLimit))
			}
			r.Get("/search", h.Search)
		})
	})
	return r
}
