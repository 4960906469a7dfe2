// Package indexer writes the lemmas of a page into the inverted index and
// keeps lemma frequencies consistent when a page is cleared or re-indexed.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

// LemmaCounter is the part of the text analyzer the indexer needs.
type LemmaCounter interface {
	LemmaFrequencies(content string) (map[string]int, error)
}

// Indexer is safe for concurrent use on different pages. Indexing the same
// page concurrently is not supported.
type Indexer struct {
	store    storage.IndexStore
	analyzer LemmaCounter
	metrics  *metrics.Metrics
	tracker  analytics.Tracker
	logger   *slog.Logger
}

// New builds an Indexer. m and tracker may be nil.
func New(store storage.IndexStore, analyzer LemmaCounter, m *metrics.Metrics, tracker analytics.Tracker) *Indexer {
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Indexer{
		store:    store,
		analyzer: analyzer,
		metrics:  m,
		tracker:  tracker,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// IndexPage adds the lemmas of content to the index for the page. Every
// lemma is upserted once per page and gets one posting ranked by its count
// on the page. A lemma that already has a posting for this page is left
// untouched, so repeating the call does not inflate frequencies. The whole
// page is written in one transaction, in sorted lemma order.
func (ix *Indexer) IndexPage(ctx context.Context, pageID, siteID int64, content string) error {
	start := time.Now()
	page, err := ix.store.FindPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("indexing page %d: %w", pageID, err)
	}

	lemmas, err := ix.analyzer.LemmaFrequencies(content)
	if err != nil {
		ix.record(page, siteID, 0, start, err)
		return fmt.Errorf("analyzing page %d: %w", pageID, err)
	}

	err = ix.store.InTx(ctx, func(tx storage.IndexStore) error {
		return writeLemmas(ctx, tx, pageID, siteID, lemmas)
	})
	ix.record(page, siteID, len(lemmas), start, err)
	if err != nil {
		return fmt.Errorf("writing lemmas of page %d: %w", pageID, err)
	}
	ix.logger.Debug("page indexed", "page_id", pageID, "path", page.Path, "lemmas", len(lemmas), "elapsed", time.Since(start))
	return nil
}

func writeLemmas(ctx context.Context, tx storage.IndexStore, pageID, siteID int64, lemmas map[string]int) error {
	texts := make([]string, 0, len(lemmas))
	for text := range lemmas {
		texts = append(texts, text)
	}
	sort.Strings(texts)

	for _, text := range texts {
		if existing, err := tx.FindLemma(ctx, siteID, text); err == nil {
			if _, err := tx.FindPosting(ctx, pageID, existing.ID); err == nil {
				continue
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		lemma, err := tx.UpsertLemma(ctx, siteID, text)
		if err != nil {
			return err
		}
		posting := &storage.Posting{PageID: pageID, LemmaID: lemma.ID, Rank: float64(lemmas[text])}
		if err := tx.CreatePosting(ctx, posting); err != nil {
			return err
		}
	}
	return nil
}

// ClearPage removes the page from the index: the frequency of every lemma
// the page references is decremented, never below zero, and the page's
// postings are deleted.
func (ix *Indexer) ClearPage(ctx context.Context, pageID, siteID int64) error {
	err := ix.store.InTx(ctx, func(tx storage.IndexStore) error {
		return clearPage(ctx, tx, pageID, siteID)
	})
	if err != nil {
		return fmt.Errorf("clearing page %d: %w", pageID, err)
	}
	return nil
}

func clearPage(ctx context.Context, tx storage.IndexStore, pageID, siteID int64) error {
	if _, err := tx.FindPage(ctx, pageID); err != nil {
		return err
	}
	if err := tx.DecrementLemmasForPage(ctx, siteID, pageID); err != nil {
		return err
	}
	return tx.DeletePostingsByPage(ctx, pageID)
}

// ReindexPage clears the page and indexes its current content as a single
// unit.
func (ix *Indexer) ReindexPage(ctx context.Context, page *storage.Page) error {
	start := time.Now()
	lemmas, err := ix.analyzer.LemmaFrequencies(page.Content)
	if err != nil {
		ix.record(page, page.SiteID, 0, start, err)
		return fmt.Errorf("analyzing page %d: %w", page.ID, err)
	}
	err = ix.store.InTx(ctx, func(tx storage.IndexStore) error {
		if err := clearPage(ctx, tx, page.ID, page.SiteID); err != nil {
			return err
		}
		return writeLemmas(ctx, tx, page.ID, page.SiteID, lemmas)
	})
	ix.record(page, page.SiteID, len(lemmas), start, err)
	if err != nil {
		return fmt.Errorf("re-indexing page %d: %w", page.ID, err)
	}
	ix.logger.Debug("page re-indexed", "page_id", page.ID, "path", page.Path, "lemmas", len(lemmas))
	return nil
}

// StorePage persists page and rebuilds its index entries in one
// transaction. A page with a zero ID is created; otherwise the stored code
// and content are replaced and the old postings cleared first. Only pages
// with code 200 get postings.
func (ix *Indexer) StorePage(ctx context.Context, page *storage.Page) error {
	start := time.Now()
	indexable := page.Code == http.StatusOK
	lemmas := map[string]int{}
	if indexable {
		var err error
		lemmas, err = ix.analyzer.LemmaFrequencies(page.Content)
		if err != nil {
			ix.record(page, page.SiteID, 0, start, err)
			return fmt.Errorf("analyzing page %s: %w", page.Path, err)
		}
	}

	created := page.ID == 0
	err := ix.store.InTx(ctx, func(tx storage.IndexStore) error {
		if created {
			if err := tx.CreatePage(ctx, page); err != nil {
				return err
			}
		} else {
			if err := tx.UpdatePage(ctx, page.ID, page.Code, page.Content); err != nil {
				return err
			}
			if err := clearPage(ctx, tx, page.ID, page.SiteID); err != nil {
				return err
			}
		}
		return writeLemmas(ctx, tx, page.ID, page.SiteID, lemmas)
	})
	if err != nil && created {
		page.ID = 0
	}
	if indexable {
		ix.record(page, page.SiteID, len(lemmas), start, err)
	}
	if err != nil {
		return fmt.Errorf("storing page %s: %w", page.Path, err)
	}
	ix.logger.Debug("page stored", "page_id", page.ID, "path", page.Path, "code", page.Code, "created", created, "lemmas", len(lemmas))
	return nil
}

// IndexStoredPage indexes the content already stored for the page.
func (ix *Indexer) IndexStoredPage(ctx context.Context, pageID int64) error {
	page, err := ix.store.FindPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("indexing page %d: %w", pageID, err)
	}
	return ix.IndexPage(ctx, page.ID, page.SiteID, page.Content)
}

func (ix *Indexer) record(page *storage.Page, siteID int64, lemmas int, start time.Time, err error) {
	event := analytics.NewIndexEvent(ix.siteURL(siteID), page.Path, page.ID)
	event.LemmaCount = lemmas
	event.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		event.Error = err.Error()
	}
	ix.tracker.Track(event)

	if ix.metrics == nil {
		return
	}
	if err != nil {
		ix.metrics.IndexFailuresTotal.Inc()
		return
	}
	ix.metrics.PagesIndexedTotal.Inc()
	ix.metrics.LemmasWrittenTotal.Add(float64(lemmas))
}

func (ix *Indexer) siteURL(siteID int64) string {
	site, err := ix.store.FindSite(context.Background(), siteID)
	if err != nil {
		return fmt.Sprintf("site:%d", siteID)
	}
	return site.URL
}
