package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/middleware"
)

type fakeIndexer struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	pageErr  error
	pages    []string
}

func (f *fakeIndexer) StartIndexing(context.Context) error { return f.startErr }
func (f *fakeIndexer) StopIndexing(context.Context) error  { return f.stopErr }

func (f *fakeIndexer) IndexSinglePage(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, url)
	return f.pageErr
}

type searchCall struct {
	query, site   string
	offset, limit int
}

type fakeSearcher struct {
	mu    sync.Mutex
	calls []searchCall
	resp  *search.Response
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, query, site string, offset, limit int) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{query, site, offset, limit})
	return f.resp, f.err
}

type fakeStats struct{ stats *statistics.Statistics }

func (f fakeStats) Get(context.Context) (*statistics.Statistics, error) { return f.stats, nil }

type fakeCache struct{}

func (fakeCache) Stats() (int64, int64) { return 3, 1 }

type server struct {
	indexer  *fakeIndexer
	searcher *fakeSearcher
	metrics  *metrics.Metrics
	handler  http.Handler
}

func newServer(t *testing.T, opts RouterOptions) *server {
	t.Helper()
	s := &server{
		indexer: &fakeIndexer{},
		searcher: &fakeSearcher{resp: &search.Response{Count: 1, Data: []search.Result{
			{Site: "http://a.test", SiteName: "A", URI: "/fox", Title: "Лиса", Snippet: "<b>лиса</b>", Relevance: 1},
		}}},
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	stats := &statistics.Statistics{
		Total:    statistics.Total{Sites: 1, Pages: 2, Lemmas: 3},
		Detailed: []statistics.SiteDetail{{URL: "http://a.test", Name: "A", Status: "INDEXED"}},
	}
	opts.Metrics = s.metrics
	h := NewHandler(s.indexer, s.searcher, fakeStats{stats}, fakeCache{}, config.Default().Search)
	s.handler = NewRouter(h, opts)
	return s
}

func (s *server) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", req.Method, req.URL, rec.Body.String())
	}
	return rec, body
}

func TestIndexingEndpoints(t *testing.T) {
	s := newServer(t, RouterOptions{})

	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/startIndexing", nil))
	if rec.Code != http.StatusOK || body["result"] != true {
		t.Errorf("startIndexing = %d %v", rec.Code, body)
	}
	if _, ok := body["error"]; ok {
		t.Errorf("successful response has an error field: %v", body)
	}

	s.indexer.startErr = apperrors.New(apperrors.ErrAlreadyRunning, http.StatusConflict, "indexing is already running")
	rec, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/startIndexing", nil))
	if rec.Code != http.StatusConflict || body["result"] != false || body["error"] != "indexing is already running" {
		t.Errorf("startIndexing while running = %d %v", rec.Code, body)
	}

	s.indexer.stopErr = apperrors.New(apperrors.ErrNotRunning, http.StatusConflict, "indexing is not running")
	rec, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/stopIndexing", nil))
	if rec.Code != http.StatusConflict || body["error"] != "indexing is not running" {
		t.Errorf("stopIndexing when idle = %d %v", rec.Code, body)
	}
}

func TestIndexPageReadsForm(t *testing.T) {
	s := newServer(t, RouterOptions{})
	form := url.Values{"url": {"http://a.test/page"}}
	req := httptest.NewRequest(http.MethodPost, "/api/indexPage", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, body := s.do(t, req)
	if rec.Code != http.StatusOK || body["result"] != true {
		t.Errorf("indexPage = %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/api/indexPage?url=http://a.test/other", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("indexPage with query value = %d", rec.Code)
	}
	if got := s.indexer.pages; len(got) != 2 || got[0] != "http://a.test/page" || got[1] != "http://a.test/other" {
		t.Errorf("indexed pages = %v", got)
	}

	s.indexer.pageErr = apperrors.New(apperrors.ErrOutsideSites, http.StatusBadRequest, "page is outside the sites listed in the configuration")
	rec, body = s.do(t, httptest.NewRequest(http.MethodPost, "/api/indexPage?url=http://b.test/", nil))
	if rec.Code != http.StatusBadRequest || body["error"] != "page is outside the sites listed in the configuration" {
		t.Errorf("indexPage outside sites = %d %v", rec.Code, body)
	}
}

func TestSearchEndpoint(t *testing.T) {
	s := newServer(t, RouterOptions{})

	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=лиса&site=http://a.test", nil))
	if rec.Code != http.StatusOK || body["result"] != true || body["count"] != float64(1) {
		t.Fatalf("search = %d %v", rec.Code, body)
	}
	item := body["data"].([]any)[0].(map[string]any)
	for _, field := range []string{"site", "siteName", "uri", "title", "snippet", "relevance"} {
		if _, ok := item[field]; !ok {
			t.Errorf("result item lacks %q: %v", field, item)
		}
	}

	s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот&offset=5&limit=1000", nil))
	want := []searchCall{
		{"лиса", "http://a.test", 0, 20},
		{"кот", "", 5, 100},
	}
	if len(s.searcher.calls) != 2 || s.searcher.calls[0] != want[0] || s.searcher.calls[1] != want[1] {
		t.Errorf("search calls = %+v, want %+v", s.searcher.calls, want)
	}

	rec, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот&limit=ten", nil))
	if rec.Code != http.StatusBadRequest || body["error"] != "limit must be an integer" {
		t.Errorf("bad limit = %d %v", rec.Code, body)
	}
}

func TestSearchErrors(t *testing.T) {
	s := newServer(t, RouterOptions{})

	s.searcher.err = apperrors.New(apperrors.ErrNotIndexed, http.StatusNotFound, "site is not indexed")
	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот", nil))
	if rec.Code != http.StatusNotFound || body["result"] != false || body["error"] != "site is not indexed" {
		t.Errorf("not indexed = %d %v", rec.Code, body)
	}

	s.searcher.err = errors.New("disk on fire")
	rec, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот", nil))
	if rec.Code != http.StatusInternalServerError || body["error"] != "internal error" {
		t.Errorf("unexpected error = %d %v", rec.Code, body)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	s := newServer(t, RouterOptions{})
	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	if rec.Code != http.StatusOK || body["result"] != true {
		t.Fatalf("statistics = %d %v", rec.Code, body)
	}
	stats := body["statistics"].(map[string]any)
	total := stats["total"].(map[string]any)
	if total["sites"] != float64(1) || total["pages"] != float64(2) || total["lemmas"] != float64(3) || total["indexing"] != false {
		t.Errorf("total = %v", total)
	}
	if detailed := stats["detailed"].([]any); len(detailed) != 1 {
		t.Errorf("detailed = %v", detailed)
	}
	if got := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/statistics", "200")); got != 1 {
		t.Errorf("request metric = %v, want 1", got)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	s := newServer(t, RouterOptions{})
	_, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	if body["enabled"] != true || body["hits"] != float64(3) || body["hitRate"] != 0.75 {
		t.Errorf("cache stats = %v", body)
	}
}

func TestSearchRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newServer(t, RouterOptions{Limiter: pkgmw.NewLimiter(ctx, time.Minute), SearchRateLimit: 2, RequestTimeout: time.Second})

	for i := 0; i < 2; i++ {
		if rec, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/search?query=кот", nil))
	if rec.Code != http.StatusTooManyRequests || body["result"] != false {
		t.Errorf("third request = %d %v", rec.Code, body)
	}
	if rec, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/statistics", nil)); rec.Code != http.StatusOK {
		t.Errorf("statistics is rate limited: %d", rec.Code)
	}
}
