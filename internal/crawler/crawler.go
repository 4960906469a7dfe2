// Package crawler discovers and fetches the pages of one site. A Run walks
// the site as a fork/join tree: every page task fetches its page, persists
// it, hands it to the indexer and then waits for the child tasks it forked
// for the page's links. All state that bounds a crawl belongs to the Run.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
)

// ErrorStatusCode is stored as the code of a page whose fetch failed
// without an HTTP response.
const ErrorStatusCode = 500

// PageIndexer indexes a freshly stored page.
type PageIndexer interface {
	IndexPage(ctx context.Context, pageID, siteID int64, content string) error
}

// PageFetcher downloads one page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Response, error)
}

// Crawler creates crawl runs sharing one store, fetcher and indexer.
type Crawler struct {
	store   storage.IndexStore
	fetcher PageFetcher
	indexer PageIndexer
	cfg     config.CrawlerConfig
	logger  *slog.Logger
}

func New(store storage.IndexStore, fetcher PageFetcher, indexer PageIndexer, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		store:   store,
		fetcher: fetcher,
		indexer: indexer,
		cfg:     cfg,
		logger:  slog.Default().With("component", "crawler"),
	}
}

// Run is one crawl of one site. It is safe for concurrent use.
type Run struct {
	ID string

	c    *Crawler
	site storage.Site
	sem  chan struct{}

	mu      sync.Mutex
	visited map[string]struct{}

	active    atomic.Int64
	cancelled atomic.Bool
	logger    *slog.Logger
}

// NewRun prepares a crawl of site. site must already be stored.
func (c *Crawler) NewRun(site storage.Site) *Run {
	parallelism := c.cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	id := uuid.NewString()
	return &Run{
		ID:      id,
		c:       c,
		site:    site,
		sem:     make(chan struct{}, parallelism),
		visited: make(map[string]struct{}),
		logger:  c.logger.With("run_id", id, "site", site.URL),
	}
}

// Crawl walks the site from its root and returns when every task has
// finished. Fetch failures and remote error statuses are recorded on the
// pages and do not fail the crawl; storage errors do.
func (r *Run) Crawl(ctx context.Context) error {
	start := time.Now()
	r.logger.Info("crawl started")
	err := r.visit(ctx, "/")
	r.logger.Info("crawl finished",
		"pages_visited", r.Visited(),
		"cancelled", r.Cancelled(),
		"elapsed", time.Since(start),
		"error", err,
	)
	if err != nil {
		return fmt.Errorf("crawling %s: %w", r.site.URL, err)
	}
	return nil
}

// Cancel makes every current and future task of the run a no-op at its
// next check. Requests already in flight complete but nothing they return
// is stored.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Visited is the number of URLs claimed by the run so far.
func (r *Run) Visited() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visited)
}

// Site returns the site being crawled.
func (r *Run) Site() storage.Site {
	return r.site
}

func (r *Run) stopped(ctx context.Context) bool {
	return r.cancelled.Load() || ctx.Err() != nil
}

// claim records pageURL as visited and reports whether this call added it.
// Once the page cap is reached nothing more can be claimed.
func (r *Run) claim(pageURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[pageURL]; ok {
		return false
	}
	if r.c.cfg.MaxPages > 0 && len(r.visited) >= r.c.cfg.MaxPages {
		return false
	}
	r.visited[pageURL] = struct{}{}
	return true
}

func (r *Run) seen(pageURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.visited[pageURL]
	return ok
}

func (r *Run) visit(ctx context.Context, path string) error {
	if r.stopped(ctx) || r.active.Load() >= int64(r.c.cfg.MaxTasks) {
		return nil
	}
	pageURL := r.site.URL + path
	if !r.claim(pageURL) {
		return nil
	}
	r.active.Add(1)
	defer r.active.Add(-1)

	exists, err := r.c.store.PageExists(ctx, r.site.ID, path)
	if err != nil {
		if r.stopped(ctx) {
			return nil
		}
		return fmt.Errorf("checking page %s: %w", path, err)
	}
	if exists || r.stopped(ctx) {
		return nil
	}

	resp, fetchErr := r.fetch(ctx, pageURL)
	if r.stopped(ctx) {
		return nil
	}
	if fetchErr != nil {
		return r.storeFailure(ctx, path, fetchErr)
	}
	if resp.StatusCode != http.StatusOK {
		return r.storeRemoteError(ctx, path, resp)
	}

	page := &storage.Page{SiteID: r.site.ID, Path: path, Code: resp.StatusCode, Content: resp.Content}
	if err := r.c.store.CreatePage(ctx, page); err != nil {
		return fmt.Errorf("storing page %s: %w", path, err)
	}
	if err := r.c.store.TouchSite(ctx, r.site.ID, time.Now()); err != nil {
		return fmt.Errorf("updating status time: %w", err)
	}
	if err := r.c.indexer.IndexPage(ctx, page.ID, r.site.ID, page.Content); err != nil {
		r.logger.Warn("page not indexed", "path", path, "error", err)
	}

	return r.fork(ctx, ExtractLinks(resp.Doc, pageURL, r.site.URL))
}

// fetch holds a semaphore slot only for the request itself so that parents
// waiting on children never block them.
func (r *Run) fetch(ctx context.Context, pageURL string) (*Response, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()
	return r.c.fetcher.Fetch(ctx, pageURL)
}

// fork starts a task per unseen link, bounded per page and by the run's
// task and page caps, and waits for all of them.
func (r *Run) fork(ctx context.Context, paths []string) error {
	var g errgroup.Group
	started := 0
	for _, p := range paths {
		if started >= r.c.cfg.MaxChildren ||
			r.active.Load() >= int64(r.c.cfg.MaxTasks) ||
			r.Visited() >= r.c.cfg.MaxPages ||
			r.stopped(ctx) {
			break
		}
		if r.seen(r.site.URL + p) {
			continue
		}
		g.Go(func() error { return r.visit(ctx, p) })
		started++
	}
	return g.Wait()
}

func (r *Run) storeFailure(ctx context.Context, path string, fetchErr error) error {
	page := &storage.Page{
		SiteID:  r.site.ID,
		Path:    path,
		Code:    ErrorStatusCode,
		Content: "Error: " + fetchErr.Error(),
	}
	if err := r.c.store.CreatePage(ctx, page); err != nil {
		return fmt.Errorf("storing failed page %s: %w", path, err)
	}
	r.logger.Warn("page fetch failed", "path", path, "error", fetchErr)
	return nil
}

func (r *Run) storeRemoteError(ctx context.Context, path string, resp *Response) error {
	page := &storage.Page{SiteID: r.site.ID, Path: path, Code: resp.StatusCode, Content: resp.Message}
	if err := r.c.store.CreatePage(ctx, page); err != nil {
		return fmt.Errorf("storing page %s: %w", path, err)
	}
	if err := r.c.store.UpdateSiteStatus(ctx, r.site.ID, storage.StatusFailed, resp.Message, time.Now()); err != nil {
		return fmt.Errorf("marking site failed: %w", err)
	}
	r.logger.Warn("remote error status", "path", path, "code", resp.StatusCode, "message", resp.Message)
	return nil
}
