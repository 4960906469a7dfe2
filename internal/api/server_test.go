package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/coordinator"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage/memstore"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

var crawledSite = map[string]string{
	"/": `<html><head><title>Главная</title></head><body>
		<a href="/fox">звери</a> <a href="/city">город</a> <a href="/sea">море</a>
	</body></html>`,
	"/fox":  `<html><head><title>Лес</title></head><body><p>Рыжая лиса спит в норе</p></body></html>`,
	"/city": `<html><head><title>Город</title></head><body><p>Шумный город не спит</p></body></html>`,
	"/sea":  `<html><head><title>Море</title></head><body><p>Тёплое море и песок</p></body></html>`,
}

// stack runs the API over the real crawler, indexer and search engine with
// an in-memory index.
type stack struct {
	api   *httptest.Server
	site  *httptest.Server
	coord *coordinator.Coordinator
}

func newStack(t *testing.T) *stack {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := crawledSite[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(site.Close)

	cfg := config.Default()
	cfg.Sites = []config.SiteConfig{{URL: site.URL, Name: "Тест"}}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Crawler.FetchTimeout = 2 * time.Second

	analyzer, err := textanalyzer.NewRussian()
	if err != nil {
		t.Fatal(err)
	}
	store := memstore.New()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	agg := analytics.NewAggregator()
	ix := indexer.New(store, analyzer, m, agg)
	fetcher := crawler.NewFetcher(cfg.Crawler, m)
	coord := coordinator.New(cfg.Sites, store, crawler.New(store, fetcher, ix, cfg.Crawler), fetcher, ix,
		coordinator.Options{Tracker: agg, Metrics: m})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})

	engine := search.New(store, analyzer, cfg.Sites, cfg.Search, m, agg)
	checker := health.NewChecker()
	h := NewHandler(coord, engine, statistics.New(store, cfg.Sites, coord), nil, cfg.Search)
	api := httptest.NewServer(NewRouter(h, RouterOptions{
		Metrics:        m,
		Analytics:      analytics.NewHandler(agg),
		Health:         checker,
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(api.Close)
	return &stack{api: api, site: site, coord: coord}
}

func (s *stack) call(t *testing.T, method, path string, params url.Values) (int, map[string]any) {
	t.Helper()
	var (
		resp *http.Response
		err  error
	)
	if method == http.MethodPost {
		resp, err = http.PostForm(s.api.URL+path, params)
	} else {
		target := s.api.URL + path
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		resp, err = http.Get(target)
	}
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("%s %s: decoding body: %v", method, path, err)
	}
	return resp.StatusCode, body
}

func (s *stack) waitIdle(t *testing.T) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_, body := s.call(t, http.MethodGet, "/api/statistics", nil)
		stats := body["statistics"].(map[string]any)
		if stats["total"].(map[string]any)["indexing"] == false {
			return stats
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("indexing did not finish")
	return nil
}

func TestCrawlAndSearchOverHTTP(t *testing.T) {
	s := newStack(t)

	if code, _ := s.call(t, http.MethodGet, "/health/live", nil); code != http.StatusOK {
		t.Errorf("live = %d", code)
	}

	code, body := s.call(t, http.MethodGet, "/api/search", url.Values{"query": {"лиса"}})
	if code != http.StatusNotFound || body["error"] != "site is not indexed" {
		t.Errorf("search before crawl = %d %v", code, body)
	}

	if code, body := s.call(t, http.MethodGet, "/api/startIndexing", nil); code != http.StatusOK || body["result"] != true {
		t.Fatalf("startIndexing = %d %v", code, body)
	}
	stats := s.waitIdle(t)
	total := stats["total"].(map[string]any)
	if total["pages"] != float64(4) {
		t.Errorf("total = %v", total)
	}
	detail := stats["detailed"].([]any)[0].(map[string]any)
	if detail["status"] != "INDEXED" || detail["url"] != s.site.URL {
		t.Errorf("detail = %v", detail)
	}

	code, body = s.call(t, http.MethodGet, "/api/search", url.Values{"query": {"лисы"}, "site": {s.site.URL + "/any/page"}})
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("search = %d %v", code, body)
	}
	hit := body["data"].([]any)[0].(map[string]any)
	if hit["uri"] != "/fox" || hit["title"] != "Лес" || hit["relevance"] != float64(1) {
		t.Errorf("hit = %v", hit)
	}
	if !strings.Contains(hit["snippet"].(string), "<b>лиса</b>") {
		t.Errorf("snippet = %q", hit["snippet"])
	}

	code, body = s.call(t, http.MethodGet, "/api/search", url.Values{"query": {"лиса"}, "site": {"http://other.test"}})
	if code != http.StatusNotFound || body["result"] != false {
		t.Errorf("search on unknown site = %d %v", code, body)
	}

	if code, body := s.call(t, http.MethodGet, "/api/stopIndexing", nil); code != http.StatusConflict || body["error"] != "indexing is not running" {
		t.Errorf("stopIndexing when idle = %d %v", code, body)
	}

	code, body = s.call(t, http.MethodPost, "/api/indexPage", url.Values{"url": {s.site.URL + "/city"}})
	if code != http.StatusOK || body["result"] != true {
		t.Errorf("indexPage = %d %v", code, body)
	}
	code, body = s.call(t, http.MethodPost, "/api/indexPage", url.Values{"url": {"http://other.test/city"}})
	if code != http.StatusBadRequest || body["result"] != false {
		t.Errorf("indexPage outside sites = %d %v", code, body)
	}

	_, body = s.call(t, http.MethodGet, "/api/analytics", nil)
	a := body["analytics"].(map[string]any)
	if a["total_searches"] != float64(3) || a["pages_indexed"] != float64(5) {
		t.Errorf("analytics = %v", a)
	}
}
