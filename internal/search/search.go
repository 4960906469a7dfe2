// Package search answers ranked full-text queries against the lemma index.
// A query is reduced to lemmas, every target site selects the pages holding
// all of its discriminating lemmas, and the merged hits are ranked by
// relevance relative to the best hit.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/tracing"
)

// Result is one ranked page.
type Result struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Response holds the total number of hits and the requested page of them.
type Response struct {
	Count int      `json:"count"`
	Data  []Result `json:"data"`
}

// QueryAnalyzer is the part of the text analyzer the engine needs.
type QueryAnalyzer interface {
	QueryLemmas(query string) ([]string, error)
	FindWordForLemma(text, lemma string) (string, error)
}

type Engine struct {
	store    storage.IndexStore
	analyzer QueryAnalyzer
	sites    []config.SiteConfig
	cfg      config.SearchConfig
	metrics  *metrics.Metrics
	tracker  analytics.Tracker
	logger   *slog.Logger
}

// New builds an Engine over the configured sites. m and tracker may be nil.
func New(
	store storage.IndexStore,
	analyzer QueryAnalyzer,
	sites []config.SiteConfig,
	cfg config.SearchConfig,
	m *metrics.Metrics,
	tracker analytics.Tracker,
) *Engine {
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Engine{
		store:    store,
		analyzer: analyzer,
		sites:    sites,
		cfg:      cfg,
		metrics:  m,
		tracker:  tracker,
		logger:   slog.Default().With("component", "search"),
	}
}

// hit is a Result before relevance is made relative.
type hit struct {
	Result
	absolute float64
}

// Search evaluates query on site, or on every indexed configured site when
// site is empty, and returns hits[offset:offset+limit] of the ranked hits.
// A negative offset counts as zero and a non-positive limit means no cap.
func (e *Engine) Search(ctx context.Context, query, site string, offset, limit int) (*Response, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "search", middleware.GetReqID(ctx))
	span.SetAttr("query", query)
	resp, lemmas, err := e.search(ctx, query, site, offset, limit)
	span.End()
	span.Log(e.logger)
	e.observe(ctx, query, site, lemmas, resp, err, time.Since(start))
	return resp, err
}

func (e *Engine) search(ctx context.Context, query, site string, offset, limit int) (*Response, []string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query must not be empty")
	}
	targets, err := e.targetSites(ctx, site)
	if err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 {
		return nil, nil, apperrors.New(apperrors.ErrNotIndexed, http.StatusNotFound, "site is not indexed")
	}
	lemmas, err := e.analyzer.QueryLemmas(query)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzing query: %w", err)
	}

	perSite := make([][]hit, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range targets {
		g.Go(func() error {
			sctx, span := tracing.StartChildSpan(gctx, "evaluate")
			span.SetAttr("site", s.URL)
			hits, err := e.evaluate(sctx, s, lemmas)
			span.SetAttr("hits", len(hits))
			span.End()
			if err != nil {
				return fmt.Errorf("searching %s: %w", s.URL, err)
			}
			perSite[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, lemmas, err
	}

	ranked := rank(perSite)
	return &Response{Count: len(ranked), Data: paginate(ranked, offset, limit)}, lemmas, nil
}

// targetSites resolves the site filter to stored sites that have pages.
func (e *Engine) targetSites(ctx context.Context, filter string) ([]storage.Site, error) {
	var urls []string
	if strings.TrimSpace(filter) == "" {
		for _, s := range e.sites {
			urls = append(urls, s.URL)
		}
	} else {
		root, err := crawler.RootURL(strings.TrimSpace(filter))
		if err != nil {
			return nil, apperrors.New(apperrors.ErrNotIndexed, http.StatusNotFound, "site is not indexed")
		}
		urls = []string{root}
	}

	var out []storage.Site
	for _, u := range urls {
		site, err := e.store.FindSiteByURL(ctx, u)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up site %s: %w", u, err)
		}
		pages, err := e.store.CountPages(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("counting pages of %s: %w", u, err)
		}
		if pages > 0 {
			out = append(out, *site)
		}
	}
	return out, nil
}

// evaluate returns the unranked hits of one site.
func (e *Engine) evaluate(ctx context.Context, site storage.Site, lemmas []string) ([]hit, error) {
	selected, err := e.selectLemmas(ctx, site.ID, lemmas)
	if err != nil || len(selected) == 0 {
		return nil, err
	}

	pageIDs, err := e.intersect(ctx, selected)
	if err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(pageIDs))
	for _, id := range pageIDs {
		page, err := e.store.FindPage(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		postings, err := e.store.ListPostingsByPage(ctx, id)
		if err != nil {
			return nil, err
		}
		var absolute float64
		for _, p := range postings {
			absolute += p.Rank
		}

		title, snippet := e.describe(page.Content, selected[0].Text)
		hits = append(hits, hit{
			Result: Result{
				Site:     site.URL,
				SiteName: site.Name,
				URI:      page.Path,
				Title:    title,
				Snippet:  snippet,
			},
			absolute: absolute,
		})
	}
	return hits, nil
}

// selectLemmas looks up the query lemmas on a site, drops the ones the site
// does not have and the ones present on too large a share of its pages, and
// orders the rest rarest first.
func (e *Engine) selectLemmas(ctx context.Context, siteID int64, lemmas []string) ([]storage.Lemma, error) {
	total, err := e.store.CountPages(ctx, siteID)
	if err != nil || total == 0 {
		return nil, err
	}
	var selected []storage.Lemma
	for _, text := range lemmas {
		l, err := e.store.FindLemma(ctx, siteID, text)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if l.Frequency <= 0 || float64(l.Frequency)/float64(total) >= e.cfg.MaxLemmaRatio {
			continue
		}
		selected = append(selected, *l)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Frequency != selected[j].Frequency {
			return selected[i].Frequency < selected[j].Frequency
		}
		return selected[i].Text < selected[j].Text
	})
	return selected, nil
}

// intersect returns, in ascending order, the pages holding a posting for
// every lemma. lemmas must be sorted rarest first.
func (e *Engine) intersect(ctx context.Context, lemmas []storage.Lemma) ([]int64, error) {
	var candidates map[int64]struct{}
	for i, l := range lemmas {
		postings, err := e.store.ListPostingsByLemma(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			candidates = make(map[int64]struct{}, len(postings))
			for _, p := range postings {
				candidates[p.PageID] = struct{}{}
			}
			continue
		}
		present := make(map[int64]struct{}, len(postings))
		for _, p := range postings {
			present[p.PageID] = struct{}{}
		}
		for id := range candidates {
			if _, ok := present[id]; !ok {
				delete(candidates, id)
			}
		}
		if len(candidates) == 0 {
			break
		}
	}

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// describe returns the page title and a snippet around the first
// occurrence of lemma.
func (e *Engine) describe(content, lemma string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return title, e.snippet(doc, lemma)
}

// rank merges the per-site hits, divides every relevance by the best one
// and sorts by decreasing relevance. Ties keep site then path order.
func rank(perSite [][]hit) []Result {
	var all []hit
	for _, hits := range perSite {
		all = append(all, hits...)
	}
	var best float64
	for _, h := range all {
		if h.absolute > best {
			best = h.absolute
		}
	}
	out := make([]Result, len(all))
	for i, h := range all {
		out[i] = h.Result
		if best > 0 {
			out[i].Relevance = h.absolute / best
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		if out[i].Site != out[j].Site {
			return out[i].Site < out[j].Site
		}
		return out[i].URI < out[j].URI
	})
	return out
}

func paginate(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

func (e *Engine) observe(ctx context.Context, query, site string, lemmas []string, resp *Response, err error, elapsed time.Duration) {
	resultType := "ok"
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		resultType = "invalid"
	case errors.Is(err, apperrors.ErrNotIndexed):
		resultType = "not_indexed"
	case err != nil:
		resultType = "error"
	case resp.Count == 0:
		resultType = "zero_result"
	}

	event := analytics.NewSearchEvent()
	event.Query = query
	event.Site = site
	event.Lemmas = lemmas
	event.LatencyMs = elapsed.Milliseconds()
	event.RequestID = middleware.GetReqID(ctx)
	if err != nil {
		event.Error = apperrors.Message(err)
	} else {
		event.TotalHits = resp.Count
		event.Returned = len(resp.Data)
	}
	e.tracker.Track(event)

	log := e.logger
	if event.RequestID != "" {
		log = log.With("request_id", event.RequestID)
	}
	if resultType == "error" {
		log.Error("search failed", "query", query, "site", site, "error", err)
	} else {
		log.Debug("search completed", "query", query, "site", site, "result_type", resultType, "elapsed", elapsed)
	}

	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.Observe(elapsed.Seconds())
	if err == nil {
		e.metrics.SearchResultsCount.Observe(float64(resp.Count))
	}
}
