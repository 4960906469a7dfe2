// Package storage defines the index repository used by the crawler, the
// indexer and the query engine, with a database/sql implementation for
// PostgreSQL and SQLite. Entities reference each other by integer id only.
package storage

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

// ErrNotFound is returned, possibly wrapped, when a lookup matches no row.
var ErrNotFound = apperrors.ErrNotFound

// IndexStore is the set of operations the core needs from persistence.
// Implementations must be safe for concurrent use. InTx runs fn against a
// store bound to one transaction; nested InTx calls reuse it.
type IndexStore interface {
	FindSite(ctx context.Context, id int64) (*Site, error)
	FindSiteByURL(ctx context.Context, url string) (*Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	CreateSite(ctx context.Context, site *Site) error
	UpdateSiteStatus(ctx context.Context, id int64, status SiteStatus, lastError string, at time.Time) error
	TouchSite(ctx context.Context, id int64, at time.Time) error
	// DeleteSite removes the site with its pages, lemmas and postings.
	DeleteSite(ctx context.Context, id int64) error

	FindPage(ctx context.Context, id int64) (*Page, error)
	FindPageByPath(ctx context.Context, siteID int64, path string) (*Page, error)
	PageExists(ctx context.Context, siteID int64, path string) (bool, error)
	CreatePage(ctx context.Context, page *Page) error
	UpdatePage(ctx context.Context, id int64, code int, content string) error
	ListPagesBySite(ctx context.Context, siteID int64) ([]Page, error)
	CountPages(ctx context.Context, siteID int64) (int, error)

	FindLemma(ctx context.Context, siteID int64, text string) (*Lemma, error)
	// UpsertLemma creates the lemma with frequency 1 or increments the
	// frequency of the existing row, and returns the stored lemma.
	UpsertLemma(ctx context.Context, siteID int64, text string) (*Lemma, error)
	// DecrementLemmasForPage lowers by one, never below zero, the frequency of
	// every lemma of the site referenced by a posting of the page.
	DecrementLemmasForPage(ctx context.Context, siteID, pageID int64) error
	DeleteLemmasBySite(ctx context.Context, siteID int64) error
	CountLemmas(ctx context.Context, siteID int64) (int, error)

	FindPosting(ctx context.Context, pageID, lemmaID int64) (*Posting, error)
	ListPostingsByPage(ctx context.Context, pageID int64) ([]Posting, error)
	ListPostingsByLemma(ctx context.Context, lemmaID int64) ([]Posting, error)
	CreatePosting(ctx context.Context, posting *Posting) error
	DeletePostingsByPage(ctx context.Context, pageID int64) error

	InTx(ctx context.Context, fn func(store IndexStore) error) error
}
