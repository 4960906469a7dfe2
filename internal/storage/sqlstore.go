package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/database"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements IndexStore on PostgreSQL or SQLite. Queries are
// written with ? placeholders and rebound for the client's dialect.
type SQLStore struct {
	client *database.Client
	q      querier
	inTx   bool
	logger *slog.Logger
}

func NewSQLStore(client *database.Client) *SQLStore {
	return &SQLStore{
		client: client,
		q:      client.DB,
		logger: slog.Default().With("component", "sql-store", "dialect", string(client.Dialect)),
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.client.Dialect) {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	s.logger.Info("schema ready")
	return nil
}

func (s *SQLStore) InTx(ctx context.Context, fn func(store IndexStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&SQLStore{client: s.client, q: tx, inTx: true, logger: s.logger})
	})
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.client.Rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.client.Rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.client.Rebind(query), args...)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

const siteColumns = `id, url, name, status, status_time, last_error`

func scanSite(row interface{ Scan(...any) error }) (*Site, error) {
	var (
		site   Site
		millis int64
	)
	if err := row.Scan(&site.ID, &site.URL, &site.Name, &site.Status, &millis, &site.LastError); err != nil {
		return nil, err
	}
	site.StatusTime = time.UnixMilli(millis)
	return &site, nil
}

func (s *SQLStore) FindSite(ctx context.Context, id int64) (*Site, error) {
	site, err := scanSite(s.queryRow(ctx, `SELECT `+siteColumns+` FROM site WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "finding site %d", id)
	}
	return site, nil
}

func (s *SQLStore) FindSiteByURL(ctx context.Context, url string) (*Site, error) {
	site, err := scanSite(s.queryRow(ctx, `SELECT `+siteColumns+` FROM site WHERE url = ?`, url))
	if err != nil {
		return nil, notFound(err, "finding site %s", url)
	}
	return site, nil
}

func (s *SQLStore) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.query(ctx, `SELECT `+siteColumns+` FROM site ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()
	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

func (s *SQLStore) CreateSite(ctx context.Context, site *Site) error {
	err := s.queryRow(ctx,
		`INSERT INTO site (url, name, status, status_time, last_error) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		site.URL, site.Name, site.Status, site.StatusTime.UnixMilli(), site.LastError,
	).Scan(&site.ID)
	if err != nil {
		return fmt.Errorf("creating site %s: %w", site.URL, err)
	}
	return nil
}

func (s *SQLStore) UpdateSiteStatus(ctx context.Context, id int64, status SiteStatus, lastError string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE site SET status = ?, last_error = ?, status_time = ? WHERE id = ?`,
		status, lastError, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating site %d status: %w", id, err)
	}
	return requireRow(res, "site %d", id)
}

func (s *SQLStore) TouchSite(ctx context.Context, id int64, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE site SET status_time = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touching site %d: %w", id, err)
	}
	return requireRow(res, "site %d", id)
}

func (s *SQLStore) DeleteSite(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(store IndexStore) error {
		tx := store.(*SQLStore)
		steps := []struct {
			what  string
			query string
		}{
			{"postings", `DELETE FROM posting WHERE page_id IN (SELECT id FROM page WHERE site_id = ?)`},
			{"lemmas", `DELETE FROM lemma WHERE site_id = ?`},
			{"pages", `DELETE FROM page WHERE site_id = ?`},
			{"site", `DELETE FROM site WHERE id = ?`},
		}
		for _, step := range steps {
			if _, err := tx.exec(ctx, step.query, id); err != nil {
				return fmt.Errorf("deleting %s of site %d: %w", step.what, id, err)
			}
		}
		return nil
	})
}

func requireRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return nil
}

const pageColumns = `id, site_id, path, code, content`

func scanPage(row interface{ Scan(...any) error }) (*Page, error) {
	var p Page
	if err := row.Scan(&p.ID, &p.SiteID, &p.Path, &p.Code, &p.Content); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) FindPage(ctx context.Context, id int64) (*Page, error) {
	page, err := scanPage(s.queryRow(ctx, `SELECT `+pageColumns+` FROM page WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "finding page %d", id)
	}
	return page, nil
}

func (s *SQLStore) FindPageByPath(ctx context.Context, siteID int64, path string) (*Page, error) {
	page, err := scanPage(s.queryRow(ctx, `SELECT `+pageColumns+` FROM page WHERE site_id = ? AND path = ?`, siteID, path))
	if err != nil {
		return nil, notFound(err, "finding page %s of site %d", path, siteID)
	}
	return page, nil
}

func (s *SQLStore) PageExists(ctx context.Context, siteID int64, path string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM page WHERE site_id = ? AND path = ?`, siteID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking page %s of site %d: %w", path, siteID, err)
	}
	return true, nil
}

func (s *SQLStore) CreatePage(ctx context.Context, page *Page) error {
	err := s.queryRow(ctx,
		`INSERT INTO page (site_id, path, code, content) VALUES (?, ?, ?, ?) RETURNING id`,
		page.SiteID, page.Path, page.Code, page.Content,
	).Scan(&page.ID)
	if err != nil {
		return fmt.Errorf("creating page %s of site %d: %w", page.Path, page.SiteID, err)
	}
	return nil
}

func (s *SQLStore) UpdatePage(ctx context.Context, id int64, code int, content string) error {
	res, err := s.exec(ctx, `UPDATE page SET code = ?, content = ? WHERE id = ?`, code, content, id)
	if err != nil {
		return fmt.Errorf("updating page %d: %w", id, err)
	}
	return requireRow(res, "page %d", id)
}

func (s *SQLStore) ListPagesBySite(ctx context.Context, siteID int64) ([]Page, error) {
	rows, err := s.query(ctx, `SELECT `+pageColumns+` FROM page WHERE site_id = ? ORDER BY id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("listing pages of site %d: %w", siteID, err)
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

func (s *SQLStore) CountPages(ctx context.Context, siteID int64) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM page WHERE site_id = ?`, siteID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pages of site %d: %w", siteID, err)
	}
	return n, nil
}

func (s *SQLStore) FindLemma(ctx context.Context, siteID int64, text string) (*Lemma, error) {
	var l Lemma
	err := s.queryRow(ctx, `SELECT id, site_id, lemma, frequency FROM lemma WHERE site_id = ? AND lemma = ?`, siteID, text).
		Scan(&l.ID, &l.SiteID, &l.Text, &l.Frequency)
	if err != nil {
		return nil, notFound(err, "finding lemma %q of site %d", text, siteID)
	}
	return &l, nil
}

func (s *SQLStore) UpsertLemma(ctx context.Context, siteID int64, text string) (*Lemma, error) {
	l := Lemma{SiteID: siteID, Text: text}
	err := s.queryRow(ctx,
		`INSERT INTO lemma (site_id, lemma, frequency) VALUES (?, ?, 1)
		 ON CONFLICT (site_id, lemma) DO UPDATE SET frequency = lemma.frequency + 1
		 RETURNING id, frequency`,
		siteID, text,
	).Scan(&l.ID, &l.Frequency)
	if err != nil {
		return nil, fmt.Errorf("upserting lemma %q of site %d: %w", text, siteID, err)
	}
	return &l, nil
}

func (s *SQLStore) DecrementLemmasForPage(ctx context.Context, siteID, pageID int64) error {
	_, err := s.exec(ctx,
		`UPDATE lemma SET frequency = frequency - 1
		 WHERE site_id = ? AND frequency > 0
		   AND id IN (SELECT lemma_id FROM posting WHERE page_id = ?)`,
		siteID, pageID)
	if err != nil {
		return fmt.Errorf("decrementing lemmas of page %d: %w", pageID, err)
	}
	return nil
}

func (s *SQLStore) DeleteLemmasBySite(ctx context.Context, siteID int64) error {
	if _, err := s.exec(ctx, `DELETE FROM lemma WHERE site_id = ?`, siteID); err != nil {
		return fmt.Errorf("deleting lemmas of site %d: %w", siteID, err)
	}
	return nil
}

func (s *SQLStore) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM lemma WHERE site_id = ?`, siteID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting lemmas of site %d: %w", siteID, err)
	}
	return n, nil
}

func (s *SQLStore) FindPosting(ctx context.Context, pageID, lemmaID int64) (*Posting, error) {
	var p Posting
	err := s.queryRow(ctx, `SELECT id, page_id, lemma_id, lemma_rank FROM posting WHERE page_id = ? AND lemma_id = ?`, pageID, lemmaID).
		Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank)
	if err != nil {
		return nil, notFound(err, "finding posting of page %d lemma %d", pageID, lemmaID)
	}
	return &p, nil
}

func (s *SQLStore) listPostings(ctx context.Context, column string, id int64) ([]Posting, error) {
	rows, err := s.query(ctx, `SELECT id, page_id, lemma_id, lemma_rank FROM posting WHERE `+column+` = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing postings by %s %d: %w", column, id, err)
	}
	defer rows.Close()
	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *SQLStore) ListPostingsByPage(ctx context.Context, pageID int64) ([]Posting, error) {
	return s.listPostings(ctx, "page_id", pageID)
}

func (s *SQLStore) ListPostingsByLemma(ctx context.Context, lemmaID int64) ([]Posting, error) {
	return s.listPostings(ctx, "lemma_id", lemmaID)
}

func (s *SQLStore) CreatePosting(ctx context.Context, posting *Posting) error {
	err := s.queryRow(ctx,
		`INSERT INTO posting (page_id, lemma_id, lemma_rank) VALUES (?, ?, ?) RETURNING id`,
		posting.PageID, posting.LemmaID, posting.Rank,
	).Scan(&posting.ID)
	if err != nil {
		return fmt.Errorf("creating posting of page %d lemma %d: %w", posting.PageID, posting.LemmaID, err)
	}
	return nil
}

func (s *SQLStore) DeletePostingsByPage(ctx context.Context, pageID int64) error {
	if _, err := s.exec(ctx, `DELETE FROM posting WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("deleting postings of page %d: %w", pageID, err)
	}
	return nil
}
