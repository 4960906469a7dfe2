// Package memstore is an in-memory storage.IndexStore for tests and for the
// "memory" database driver. Data lives for the lifetime of the process.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
)

type pageKey struct {
	siteID int64
	path   string
}

type lemmaKey struct {
	siteID int64
	text   string
}

type postingKey struct {
	pageID  int64
	lemmaID int64
}

type data struct {
	nextID   int64
	sites    map[int64]storage.Site
	pages    map[int64]storage.Page
	lemmas   map[int64]storage.Lemma
	postings map[int64]storage.Posting

	pageByPath     map[pageKey]int64
	lemmaByText    map[lemmaKey]int64
	postingByPair  map[postingKey]int64
	postingsByPage map[int64]map[int64]struct{}
}

func newData() *data {
	return &data{
		sites:          make(map[int64]storage.Site),
		pages:          make(map[int64]storage.Page),
		lemmas:         make(map[int64]storage.Lemma),
		postings:       make(map[int64]storage.Posting),
		pageByPath:     make(map[pageKey]int64),
		lemmaByText:    make(map[lemmaKey]int64),
		postingByPair:  make(map[postingKey]int64),
		postingsByPage: make(map[int64]map[int64]struct{}),
	}
}

// Store guards all data with one mutex. InTx serializes whole transactions
// and rolls back by restoring a snapshot when fn fails.
type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	d    **data
	inTx bool
}

func New() *Store {
	d := newData()
	return &Store{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, d: &d}
}

func (s *Store) InTx(ctx context.Context, fn func(store storage.IndexStore) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := (*s.d).clone()
	s.mu.Unlock()

	// A context that ends before commit rolls the writes back, as a SQL
	// transaction would.
	tx := &Store{mu: s.mu, txMu: s.txMu, d: s.d, inTx: true}
	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		*s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (d *data) clone() *data {
	c := newData()
	c.nextID = d.nextID
	for k, v := range d.sites {
		c.sites[k] = v
	}
	for k, v := range d.pages {
		c.pages[k] = v
	}
	for k, v := range d.lemmas {
		c.lemmas[k] = v
	}
	for k, v := range d.postings {
		c.postings[k] = v
	}
	for k, v := range d.pageByPath {
		c.pageByPath[k] = v
	}
	for k, v := range d.lemmaByText {
		c.lemmaByText[k] = v
	}
	for k, v := range d.postingByPair {
		c.postingByPair[k] = v
	}
	for k, set := range d.postingsByPage {
		cs := make(map[int64]struct{}, len(set))
		for id := range set {
			cs[id] = struct{}{}
		}
		c.postingsByPage[k] = cs
	}
	return c
}

// lock acquires the data mutex. Writes made outside InTx also wait for any
// running transaction so that a rollback never discards them.
func (s *Store) lock() (*data, func()) {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return *s.d, func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), storage.ErrNotFound)
}

func (s *Store) FindSite(_ context.Context, id int64) (*storage.Site, error) {
	d, unlock := s.lock()
	defer unlock()
	site, ok := d.sites[id]
	if !ok {
		return nil, notFound("finding site %d", id)
	}
	return &site, nil
}

func (s *Store) FindSiteByURL(_ context.Context, url string) (*storage.Site, error) {
	d, unlock := s.lock()
	defer unlock()
	for _, site := range d.sites {
		if site.URL == url {
			return &site, nil
		}
	}
	return nil, notFound("finding site %s", url)
}

func (s *Store) ListSites(_ context.Context) ([]storage.Site, error) {
	d, unlock := s.lock()
	defer unlock()
	sites := make([]storage.Site, 0, len(d.sites))
	for _, site := range d.sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
	return sites, nil
}

func (s *Store) CreateSite(_ context.Context, site *storage.Site) error {
	d, unlock := s.lock()
	defer unlock()
	for _, existing := range d.sites {
		if existing.URL == site.URL {
			return fmt.Errorf("creating site %s: duplicate url", site.URL)
		}
	}
	site.ID = d.id()
	d.sites[site.ID] = *site
	return nil
}

func (s *Store) UpdateSiteStatus(_ context.Context, id int64, status storage.SiteStatus, lastError string, at time.Time) error {
	d, unlock := s.lock()
	defer unlock()
	site, ok := d.sites[id]
	if !ok {
		return notFound("site %d", id)
	}
	site.Status, site.LastError, site.StatusTime = status, lastError, at
	d.sites[id] = site
	return nil
}

func (s *Store) TouchSite(_ context.Context, id int64, at time.Time) error {
	d, unlock := s.lock()
	defer unlock()
	site, ok := d.sites[id]
	if !ok {
		return notFound("site %d", id)
	}
	site.StatusTime = at
	d.sites[id] = site
	return nil
}

func (s *Store) DeleteSite(_ context.Context, id int64) error {
	d, unlock := s.lock()
	defer unlock()
	for pageID, page := range d.pages {
		if page.SiteID != id {
			continue
		}
		d.deletePostings(pageID)
		delete(d.pageByPath, pageKey{page.SiteID, page.Path})
		delete(d.pages, pageID)
	}
	d.deleteLemmas(id)
	delete(d.sites, id)
	return nil
}

func (s *Store) FindPage(_ context.Context, id int64) (*storage.Page, error) {
	d, unlock := s.lock()
	defer unlock()
	page, ok := d.pages[id]
	if !ok {
		return nil, notFound("finding page %d", id)
	}
	return &page, nil
}

func (s *Store) FindPageByPath(_ context.Context, siteID int64, path string) (*storage.Page, error) {
	d, unlock := s.lock()
	defer unlock()
	id, ok := d.pageByPath[pageKey{siteID, path}]
	if !ok {
		return nil, notFound("finding page %s of site %d", path, siteID)
	}
	page := d.pages[id]
	return &page, nil
}

func (s *Store) PageExists(_ context.Context, siteID int64, path string) (bool, error) {
	d, unlock := s.lock()
	defer unlock()
	_, ok := d.pageByPath[pageKey{siteID, path}]
	return ok, nil
}

func (s *Store) CreatePage(_ context.Context, page *storage.Page) error {
	d, unlock := s.lock()
	defer unlock()
	if _, ok := d.sites[page.SiteID]; !ok {
		return notFound("creating page %s: site %d", page.Path, page.SiteID)
	}
	key := pageKey{page.SiteID, page.Path}
	if _, dup := d.pageByPath[key]; dup {
		return fmt.Errorf("creating page %s of site %d: duplicate path", page.Path, page.SiteID)
	}
	page.ID = d.id()
	d.pages[page.ID] = *page
	d.pageByPath[key] = page.ID
	return nil
}

func (s *Store) UpdatePage(_ context.Context, id int64, code int, content string) error {
	d, unlock := s.lock()
	defer unlock()
	page, ok := d.pages[id]
	if !ok {
		return notFound("page %d", id)
	}
	page.Code, page.Content = code, content
	d.pages[id] = page
	return nil
}

func (s *Store) ListPagesBySite(_ context.Context, siteID int64) ([]storage.Page, error) {
	d, unlock := s.lock()
	defer unlock()
	var pages []storage.Page
	for _, page := range d.pages {
		if page.SiteID == siteID {
			pages = append(pages, page)
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages, nil
}

func (s *Store) CountPages(_ context.Context, siteID int64) (int, error) {
	d, unlock := s.lock()
	defer unlock()
	n := 0
	for _, page := range d.pages {
		if page.SiteID == siteID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindLemma(_ context.Context, siteID int64, text string) (*storage.Lemma, error) {
	d, unlock := s.lock()
	defer unlock()
	id, ok := d.lemmaByText[lemmaKey{siteID, text}]
	if !ok {
		return nil, notFound("finding lemma %q of site %d", text, siteID)
	}
	l := d.lemmas[id]
	return &l, nil
}

func (s *Store) UpsertLemma(_ context.Context, siteID int64, text string) (*storage.Lemma, error) {
	d, unlock := s.lock()
	defer unlock()
	key := lemmaKey{siteID, text}
	if id, ok := d.lemmaByText[key]; ok {
		l := d.lemmas[id]
		l.Frequency++
		d.lemmas[id] = l
		return &l, nil
	}
	if _, ok := d.sites[siteID]; !ok {
		return nil, notFound("upserting lemma %q: site %d", text, siteID)
	}
	l := storage.Lemma{ID: d.id(), SiteID: siteID, Text: text, Frequency: 1}
	d.lemmas[l.ID] = l
	d.lemmaByText[key] = l.ID
	return &l, nil
}

func (s *Store) DecrementLemmasForPage(_ context.Context, siteID, pageID int64) error {
	d, unlock := s.lock()
	defer unlock()
	for postingID := range d.postingsByPage[pageID] {
		lemmaID := d.postings[postingID].LemmaID
		l, ok := d.lemmas[lemmaID]
		if !ok || l.SiteID != siteID || l.Frequency <= 0 {
			continue
		}
		l.Frequency--
		d.lemmas[lemmaID] = l
	}
	return nil
}

func (s *Store) DeleteLemmasBySite(_ context.Context, siteID int64) error {
	d, unlock := s.lock()
	defer unlock()
	d.deleteLemmas(siteID)
	return nil
}

func (d *data) deleteLemmas(siteID int64) {
	for id, l := range d.lemmas {
		if l.SiteID != siteID {
			continue
		}
		for postingID, p := range d.postings {
			if p.LemmaID == id {
				d.deletePosting(postingID)
			}
		}
		delete(d.lemmaByText, lemmaKey{l.SiteID, l.Text})
		delete(d.lemmas, id)
	}
}

func (s *Store) CountLemmas(_ context.Context, siteID int64) (int, error) {
	d, unlock := s.lock()
	defer unlock()
	n := 0
	for _, l := range d.lemmas {
		if l.SiteID == siteID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindPosting(_ context.Context, pageID, lemmaID int64) (*storage.Posting, error) {
	d, unlock := s.lock()
	defer unlock()
	id, ok := d.postingByPair[postingKey{pageID, lemmaID}]
	if !ok {
		return nil, notFound("finding posting of page %d lemma %d", pageID, lemmaID)
	}
	p := d.postings[id]
	return &p, nil
}

func (s *Store) ListPostingsByPage(_ context.Context, pageID int64) ([]storage.Posting, error) {
	d, unlock := s.lock()
	defer unlock()
	postings := make([]storage.Posting, 0, len(d.postingsByPage[pageID]))
	for id := range d.postingsByPage[pageID] {
		postings = append(postings, d.postings[id])
	}
	sort.Slice(postings, func(i, j int) bool { return postings[i].ID < postings[j].ID })
	return postings, nil
}

func (s *Store) ListPostingsByLemma(_ context.Context, lemmaID int64) ([]storage.Posting, error) {
	d, unlock := s.lock()
	defer unlock()
	var postings []storage.Posting
	for _, p := range d.postings {
		if p.LemmaID == lemmaID {
			postings = append(postings, p)
		}
	}
	sort.Slice(postings, func(i, j int) bool { return postings[i].ID < postings[j].ID })
	return postings, nil
}

func (s *Store) CreatePosting(_ context.Context, posting *storage.Posting) error {
	d, unlock := s.lock()
	defer unlock()
	if _, ok := d.pages[posting.PageID]; !ok {
		return notFound("creating posting: page %d", posting.PageID)
	}
	if _, ok := d.lemmas[posting.LemmaID]; !ok {
		return notFound("creating posting: lemma %d", posting.LemmaID)
	}
	key := postingKey{posting.PageID, posting.LemmaID}
	if _, dup := d.postingByPair[key]; dup {
		return fmt.Errorf("creating posting of page %d lemma %d: duplicate", posting.PageID, posting.LemmaID)
	}
	posting.ID = d.id()
	d.postings[posting.ID] = *posting
	d.postingByPair[key] = posting.ID
	if d.postingsByPage[posting.PageID] == nil {
		d.postingsByPage[posting.PageID] = make(map[int64]struct{})
	}
	d.postingsByPage[posting.PageID][posting.ID] = struct{}{}
	return nil
}

func (s *Store) DeletePostingsByPage(_ context.Context, pageID int64) error {
	d, unlock := s.lock()
	defer unlock()
	d.deletePostings(pageID)
	return nil
}

func (d *data) deletePostings(pageID int64) {
	for id := range d.postingsByPage[pageID] {
		d.deletePosting(id)
	}
	delete(d.postingsByPage, pageID)
}

func (d *data) deletePosting(id int64) {
	p, ok := d.postings[id]
	if !ok {
		return
	}
	delete(d.postingByPair, postingKey{p.PageID, p.LemmaID})
	if set := d.postingsByPage[p.PageID]; set != nil {
		delete(set, id)
	}
	delete(d.postings, id)
}

var _ storage.IndexStore = (*Store)(nil)
