package storage

import "time"

// SiteStatus is the indexing lifecycle state of a site.
type SiteStatus string

const (
	StatusIndexing SiteStatus = "INDEXING"
	StatusIndexed  SiteStatus = "INDEXED"
	StatusFailed   SiteStatus = "FAILED"
)

// Site is one configured root URL and the state of its last crawl.
type Site struct {
	ID         int64      `json:"id"`
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Status     SiteStatus `json:"status"`
	StatusTime time.Time  `json:"statusTime"`
	LastError  string     `json:"lastError,omitempty"`
}

// Page is a fetched document. Path is normalized and unique per site; Code
// is the HTTP status, or 500 for a network failure.
type Page struct {
	ID      int64  `json:"id"`
	SiteID  int64  `json:"siteId"`
	Path    string `json:"path"`
	Code    int    `json:"code"`
	Content string `json:"content"`
}

// Lemma is unique per (SiteID, Text). Frequency counts the distinct pages
// of the site holding a posting for it.
type Lemma struct {
	ID        int64  `json:"id"`
	SiteID    int64  `json:"siteId"`
	Text      string `json:"lemma"`
	Frequency int    `json:"frequency"`
}

// Posting links a page to a lemma. Rank is the number of occurrences of the
// lemma on the page.
type Posting struct {
	ID      int64   `json:"id"`
	PageID  int64   `json:"pageId"`
	LemmaID int64   `json:"lemmaId"`
	Rank    float64 `json:"rank"`
}
