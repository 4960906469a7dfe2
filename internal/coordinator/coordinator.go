// Package coordinator owns the crawl lifecycle: it starts one crawl per
// configured site, stops them on request, records the final status of every
// site and indexes single pages on demand.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

const (
	StoppedByUser     = "stopped by user"
	StoppedByShutdown = "stopped by shutdown"

	finishTimeout = 10 * time.Second
)

// Crawl outcomes, as counted by the crawler_runs_total metric.
const (
	outcomeIndexed = "indexed"
	outcomeFailed  = "failed"
	outcomeStopped = "stopped"
)

// PageStorer persists a page together with its index entries.
type PageStorer interface {
	StorePage(ctx context.Context, page *storage.Page) error
}

// CacheInvalidator drops cached search results.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type handle struct {
	run *crawler.Run
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	sites   []config.SiteConfig
	store   storage.IndexStore
	crawler *crawler.Crawler
	fetcher crawler.PageFetcher
	pages   PageStorer
	cache   CacheInvalidator
	tracker analytics.Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*handle
	wg     sync.WaitGroup
	single singleflight.Group
}

// Options carries the optional collaborators of a Coordinator.
type Options struct {
	Cache   CacheInvalidator
	Tracker analytics.Tracker
	Metrics *metrics.Metrics
}

func New(
	sites []config.SiteConfig,
	store storage.IndexStore,
	c *crawler.Crawler,
	fetcher crawler.PageFetcher,
	pages PageStorer,
	opts Options,
) *Coordinator {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		sites:   sites,
		store:   store,
		crawler: c,
		fetcher: fetcher,
		pages:   pages,
		cache:   opts.Cache,
		tracker: tracker,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "coordinator"),
		ctx:     ctx,
		cancel:  cancel,
		runs:    make(map[string]*handle),
	}
}

// StartIndexing recreates every configured site with status INDEXING and
// starts a crawl for each. It fails with ErrAlreadyRunning while any crawl
// is registered or any stored site is INDEXING.
func (c *Coordinator) StartIndexing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	running, err := c.isIndexingLocked(ctx)
	if err != nil {
		return err
	}
	if running {
		return apperrors.New(apperrors.ErrAlreadyRunning, http.StatusConflict, "indexing is already running")
	}

	c.invalidate(ctx)
	for _, sc := range c.sites {
		site, err := c.resetSite(ctx, sc)
		if err != nil {
			c.logger.Error("site setup failed", "site", sc.URL, "error", err)
			c.markSetupFailed(ctx, sc, err)
			continue
		}
		c.launch(*site)
	}
	return nil
}

// resetSite deletes any previous data of the site and stores a fresh row
// with status INDEXING.
func (c *Coordinator) resetSite(ctx context.Context, sc config.SiteConfig) (*storage.Site, error) {
	old, err := c.store.FindSiteByURL(ctx, sc.URL)
	switch {
	case err == nil:
		if err := c.store.DeleteSite(ctx, old.ID); err != nil {
			return nil, fmt.Errorf("deleting previous data: %w", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("looking up site: %w", err)
	}

	site := &storage.Site{
		URL:        sc.URL,
		Name:       sc.Name,
		Status:     storage.StatusIndexing,
		StatusTime: time.Now(),
	}
	if err := c.store.CreateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("creating site: %w", err)
	}
	return site, nil
}

// markSetupFailed records a setup error on whatever row the site still has.
func (c *Coordinator) markSetupFailed(ctx context.Context, sc config.SiteConfig, setupErr error) {
	site, err := c.store.FindSiteByURL(ctx, sc.URL)
	if err != nil {
		return
	}
	if err := c.store.UpdateSiteStatus(ctx, site.ID, storage.StatusFailed, setupErr.Error(), time.Now()); err != nil {
		c.logger.Error("failed to record setup error", "site", sc.URL, "error", err)
	}
}

// launch must be called with c.mu held.
func (c *Coordinator) launch(site storage.Site) {
	h := &handle{run: c.crawler.NewRun(site)}
	c.runs[site.URL] = h
	c.wg.Add(1)
	if c.metrics != nil {
		c.metrics.ActiveCrawls.Inc()
	}
	c.tracker.Track(analytics.NewSiteEvent(h.run.ID, site.URL, string(storage.StatusIndexing)))
	go func() {
		defer c.wg.Done()
		err := h.run.Crawl(c.ctx)
		c.finish(h, err)
	}()
}

// finish records the outcome of a crawl that returned. A stopped crawl was
// already marked FAILED by whoever stopped it; a crawl that hit an error
// is marked FAILED with the error; otherwise the site becomes INDEXED.
func (c *Coordinator) finish(h *handle, crawlErr error) {
	site := h.run.Site()
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	// Settling under the lock orders it against StopIndexing, so a stop
	// that already marked the site FAILED is never overwritten.
	c.mu.Lock()
	if c.runs[site.URL] == h {
		delete(c.runs, site.URL)
	}
	outcome := c.settle(ctx, h.run, crawlErr)
	c.mu.Unlock()

	c.logger.Info("crawl settled", "site", site.URL, "run_id", h.run.ID, "outcome", outcome, "pages", h.run.Visited())
	if outcome != outcomeStopped {
		status := storage.StatusFailed
		if outcome == outcomeIndexed {
			status = storage.StatusIndexed
		}
		event := analytics.NewSiteEvent(h.run.ID, site.URL, string(status))
		event.PagesVisited = h.run.Visited()
		if crawlErr != nil {
			event.Error = crawlErr.Error()
		}
		c.tracker.Track(event)
	}
	if c.metrics != nil {
		c.metrics.ActiveCrawls.Dec()
		c.metrics.CrawlRunsTotal.WithLabelValues(outcome).Inc()
	}
	c.invalidate(ctx)
}

func (c *Coordinator) settle(ctx context.Context, run *crawler.Run, crawlErr error) string {
	site := run.Site()
	if run.Cancelled() {
		return outcomeStopped
	}
	if crawlErr != nil {
		if err := c.store.UpdateSiteStatus(ctx, site.ID, storage.StatusFailed, crawlErr.Error(), time.Now()); err != nil {
			c.logger.Error("failed to mark site failed", "site", site.URL, "error", err)
		}
		return outcomeFailed
	}
	current, err := c.store.FindSite(ctx, site.ID)
	if err != nil {
		c.logger.Error("failed to load site after crawl", "site", site.URL, "error", err)
		return outcomeFailed
	}
	// A page that answered with an error status marked the site FAILED mid
	// crawl. The finished crawl still makes it INDEXED and keeps that error.
	if err := c.store.UpdateSiteStatus(ctx, site.ID, storage.StatusIndexed, current.LastError, time.Now()); err != nil {
		c.logger.Error("failed to mark site indexed", "site", site.URL, "error", err)
		return outcomeFailed
	}
	return outcomeIndexed
}

// StopIndexing cancels every running crawl and marks every INDEXING site
// FAILED. It fails with ErrNotRunning when nothing is indexing.
func (c *Coordinator) StopIndexing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	running, err := c.isIndexingLocked(ctx)
	if err != nil {
		return err
	}
	if !running {
		return apperrors.New(apperrors.ErrNotRunning, http.StatusConflict, "indexing is not running")
	}
	return c.stopLocked(ctx, StoppedByUser)
}

func (c *Coordinator) stopLocked(ctx context.Context, reason string) error {
	for url, h := range c.runs {
		h.run.Cancel()
		delete(c.runs, url)
	}

	sites, err := c.store.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("listing sites: %w", err)
	}
	for _, site := range sites {
		if site.Status != storage.StatusIndexing {
			continue
		}
		if err := c.store.UpdateSiteStatus(ctx, site.ID, storage.StatusFailed, reason, time.Now()); err != nil {
			return fmt.Errorf("marking site %s failed: %w", site.URL, err)
		}
		event := analytics.NewSiteEvent("", site.URL, string(storage.StatusFailed))
		event.Error = reason
		c.tracker.Track(event)
	}
	c.logger.Info("indexing stopped", "reason", reason)
	return nil
}

// IsIndexing reports whether a crawl is registered or a stored site is
// INDEXING.
func (c *Coordinator) IsIndexing(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isIndexingLocked(ctx)
}

func (c *Coordinator) isIndexingLocked(ctx context.Context) (bool, error) {
	if len(c.runs) > 0 {
		return true, nil
	}
	sites, err := c.store.ListSites(ctx)
	if err != nil {
		return false, fmt.Errorf("listing sites: %w", err)
	}
	for _, s := range sites {
		if s.Status == storage.StatusIndexing {
			return true, nil
		}
	}
	return false, nil
}

// Wait blocks until every launched crawl has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown stops running crawls, aborts their in-flight requests and waits
// for them to settle or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	var stopErr error
	if len(c.runs) > 0 {
		stopErr = c.stopLocked(ctx, StoppedByShutdown)
	}
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return stopErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for crawls: %w", ctx.Err())
	}
}

// IndexSinglePage fetches one page of a configured site and stores and
// indexes it, replacing the stored copy if there is one. Concurrent calls
// for the same page share one execution.
func (c *Coordinator) IndexSinglePage(ctx context.Context, rawURL string) error {
	ref, err := validatePageURL(rawURL)
	if err != nil {
		return err
	}
	sc, ok := c.siteConfig(ref.root)
	if !ok {
		return apperrors.New(apperrors.ErrOutsideSites, http.StatusBadRequest,
			"page is outside the sites listed in the configuration")
	}

	_, err, shared := c.single.Do(ref.url(), func() (any, error) {
		return nil, c.indexPage(ctx, sc, ref)
	})
	if shared {
		c.logger.Debug("single page indexing shared", "url", ref.url())
	}
	return err
}

func (c *Coordinator) siteConfig(root string) (config.SiteConfig, bool) {
	for _, s := range c.sites {
		if s.URL == root {
			return s, true
		}
	}
	return config.SiteConfig{}, false
}

func (c *Coordinator) indexPage(ctx context.Context, sc config.SiteConfig, ref pageRef) error {
	log := c.logger.With("url", ref.url())

	resp, err := c.fetcher.Fetch(ctx, ref.url())
	if err != nil {
		log.Warn("single page fetch failed", "error", err)
		return apperrors.New(apperrors.ErrFetch, http.StatusBadGateway, "failed to fetch the page")
	}

	site, err := c.ensureSite(ctx, sc)
	if err != nil {
		return err
	}

	page, err := c.store.FindPageByPath(ctx, site.ID, ref.path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		page = &storage.Page{SiteID: site.ID, Path: ref.path}
	case err != nil:
		return fmt.Errorf("looking up page: %w", err)
	}
	page.Code = resp.StatusCode
	page.Content = resp.Content
	if resp.StatusCode != http.StatusOK {
		page.Content = resp.Message
	}

	if err := c.pages.StorePage(ctx, page); err != nil {
		if errors.Is(err, apperrors.ErrAnalysis) {
			return apperrors.Newf(apperrors.ErrAnalysis, http.StatusUnprocessableEntity,
				"failed to analyze page %s", ref.path)
		}
		return fmt.Errorf("storing page: %w", err)
	}
	c.invalidate(ctx)

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.ErrRemoteStatus, http.StatusBadGateway,
			"%d: %s", resp.StatusCode, resp.Message)
	}
	log.Info("page indexed", "page_id", page.ID)
	return nil
}

// ensureSite returns the stored site for sc, creating it as INDEXED when it
// was never crawled.
func (c *Coordinator) ensureSite(ctx context.Context, sc config.SiteConfig) (*storage.Site, error) {
	site, err := c.store.FindSiteByURL(ctx, sc.URL)
	if err == nil {
		return site, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up site: %w", err)
	}
	site = &storage.Site{URL: sc.URL, Name: sc.Name, Status: storage.StatusIndexed, StatusTime: time.Now()}
	if err := c.store.CreateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("creating site: %w", err)
	}
	return site, nil
}

func (c *Coordinator) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.logger.Warn("search cache invalidation failed", "error", err)
	}
}
