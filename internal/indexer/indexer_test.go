package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage/memstore"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

// wordCounter counts space separated words and fails on "!".
type wordCounter struct{}

func (wordCounter) LemmaFrequencies(content string) (map[string]int, error) {
	out := make(map[string]int)
	for _, w := range strings.Fields(content) {
		if w == "!" {
			return nil, apperrors.New(apperrors.ErrAnalysis, 0, "cannot analyze")
		}
		out[w]++
	}
	return out, nil
}

type fixture struct {
	store *memstore.Store
	ix    *Indexer
	agg   *analytics.Aggregator
	m     *metrics.Metrics
	site  *storage.Site
}

func newFixture(t testing.TB, analyzer LemmaCounter) *fixture {
	t.Helper()
	store := memstore.New()
	site := &storage.Site{URL: "http://a.test", Name: "A", Status: storage.StatusIndexing}
	if err := store.CreateSite(context.Background(), site); err != nil {
		t.Fatal(err)
	}
	agg := analytics.NewAggregator()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return &fixture{store: store, ix: New(store, analyzer, m, agg), agg: agg, m: m, site: site}
}

func (f *fixture) page(t testing.TB, path, content string) *storage.Page {
	t.Helper()
	p := &storage.Page{SiteID: f.site.ID, Path: path, Code: 200, Content: content}
	if err := f.store.CreatePage(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

// checkFrequencies asserts that every lemma's frequency equals the number
// of pages holding a posting for it.
func (f *fixture) checkFrequencies(t *testing.T, want map[string]int) {
	t.Helper()
	ctx := context.Background()
	for text, n := range want {
		l, err := f.store.FindLemma(ctx, f.site.ID, text)
		if err != nil {
			t.Fatalf("FindLemma(%q) error = %v", text, err)
		}
		postings, err := f.store.ListPostingsByLemma(ctx, l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if l.Frequency != n || len(postings) != n {
			t.Errorf("lemma %q frequency=%d postings=%d, want %d", text, l.Frequency, len(postings), n)
		}
	}
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	p1 := f.page(t, "/1", "кот лис лис")
	p2 := f.page(t, "/2", "лис дом")

	for _, p := range []*storage.Page{p1, p2} {
		if err := f.ix.IndexPage(ctx, p.ID, p.SiteID, p.Content); err != nil {
			t.Fatalf("IndexPage(%s) error = %v", p.Path, err)
		}
	}
	f.checkFrequencies(t, map[string]int{"кот": 1, "лис": 2, "дом": 1})

	lis, _ := f.store.FindLemma(ctx, f.site.ID, "лис")
	posting, err := f.store.FindPosting(ctx, p1.ID, lis.ID)
	if err != nil || posting.Rank != 2 {
		t.Errorf("posting rank = %+v, %v, want 2", posting, err)
	}

	if got := testutil.ToFloat64(f.m.PagesIndexedTotal); got != 2 {
		t.Errorf("pages indexed metric = %v, want 2", got)
	}
	if got := f.agg.Stats().PagesIndexed; got != 2 {
		t.Errorf("analytics pages indexed = %d, want 2", got)
	}
}

func TestIndexPageTwiceDoesNotInflate(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	p := f.page(t, "/", "кот лис")
	for i := 0; i < 2; i++ {
		if err := f.ix.IndexPage(ctx, p.ID, p.SiteID, p.Content); err != nil {
			t.Fatal(err)
		}
	}
	f.checkFrequencies(t, map[string]int{"кот": 1, "лис": 1})
}

func TestReindexIsIdempotent(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	p1 := f.page(t, "/1", "кот лис")
	p2 := f.page(t, "/2", "лис")
	for _, p := range []*storage.Page{p1, p2} {
		if err := f.ix.IndexStoredPage(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.ix.ClearPage(ctx, p1.ID, p1.SiteID); err != nil {
		t.Fatalf("ClearPage() error = %v", err)
	}
	f.checkFrequencies(t, map[string]int{"кот": 0, "лис": 1})

	if err := f.ix.IndexPage(ctx, p1.ID, p1.SiteID, p1.Content); err != nil {
		t.Fatal(err)
	}
	f.checkFrequencies(t, map[string]int{"кот": 1, "лис": 2})

	if err := f.ix.ReindexPage(ctx, p1); err != nil {
		t.Fatalf("ReindexPage() error = %v", err)
	}
	f.checkFrequencies(t, map[string]int{"кот": 1, "лис": 2})
}

func TestReindexWithNewContent(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	p := f.page(t, "/", "кот лис")
	if err := f.ix.IndexStoredPage(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	p.Content = "лис дом"
	if err := f.store.UpdatePage(ctx, p.ID, 200, p.Content); err != nil {
		t.Fatal(err)
	}
	if err := f.ix.ReindexPage(ctx, p); err != nil {
		t.Fatal(err)
	}
	f.checkFrequencies(t, map[string]int{"кот": 0, "лис": 1, "дом": 1})
}

func TestIndexPageNotFound(t *testing.T) {
	f := newFixture(t, wordCounter{})
	err := f.ix.IndexPage(context.Background(), 999, f.site.ID, "кот")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("IndexPage(missing) error = %v, want ErrNotFound", err)
	}
	if err := f.ix.ClearPage(context.Background(), 999, f.site.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("ClearPage(missing) error = %v, want ErrNotFound", err)
	}
}

func TestIndexPageAnalysisFailureWritesNothing(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	p := f.page(t, "/", "кот ! лис")
	err := f.ix.IndexPage(ctx, p.ID, p.SiteID, p.Content)
	if !errors.Is(err, apperrors.ErrAnalysis) {
		t.Fatalf("IndexPage() error = %v, want ErrAnalysis", err)
	}
	if n, _ := f.store.CountLemmas(ctx, f.site.ID); n != 0 {
		t.Errorf("lemmas written = %d, want 0", n)
	}
	if got := testutil.ToFloat64(f.m.IndexFailuresTotal); got != 1 {
		t.Errorf("failure metric = %v, want 1", got)
	}
	if got := f.agg.Stats().PagesFailed; got != 1 {
		t.Errorf("analytics failed pages = %d, want 1", got)
	}
}

func TestIndexPageRussian(t *testing.T) {
	analyzer, err := textanalyzer.NewRussian()
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, analyzer)
	ctx := context.Background()
	p := f.page(t, "/", "<p>Лиса и лисы видели дом.</p>")
	if err := f.ix.IndexStoredPage(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	l, err := f.store.FindLemma(ctx, f.site.ID, "лис")
	if err != nil {
		t.Fatal(err)
	}
	posting, err := f.store.FindPosting(ctx, p.ID, l.ID)
	if err != nil || posting.Rank != 2 {
		t.Errorf("posting for лис = %+v, %v, want rank 2", posting, err)
	}
	if _, err := f.store.FindLemma(ctx, f.site.ID, "и"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("conjunction indexed: %v", err)
	}
}

func TestStorePage(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()

	page := &storage.Page{SiteID: f.site.ID, Path: "/new", Code: 200, Content: "кот лис"}
	if err := f.ix.StorePage(ctx, page); err != nil {
		t.Fatalf("StorePage(new) error = %v", err)
	}
	if page.ID == 0 {
		t.Fatal("StorePage did not assign an id")
	}
	f.checkFrequencies(t, map[string]int{"кот": 1, "лис": 1})

	page.Content = "лис дом"
	if err := f.ix.StorePage(ctx, page); err != nil {
		t.Fatalf("StorePage(existing) error = %v", err)
	}
	f.checkFrequencies(t, map[string]int{"кот": 0, "лис": 1, "дом": 1})

	page.Code, page.Content = 404, "Not Found"
	if err := f.ix.StorePage(ctx, page); err != nil {
		t.Fatal(err)
	}
	f.checkFrequencies(t, map[string]int{"лис": 0, "дом": 0})
	stored, err := f.store.FindPage(ctx, page.ID)
	if err != nil || stored.Code != 404 || stored.Content != "Not Found" {
		t.Errorf("stored page = %+v, %v", stored, err)
	}
}

func TestStorePageRollsBack(t *testing.T) {
	f := newFixture(t, wordCounter{})
	ctx := context.Background()
	f.page(t, "/dup", "кот")

	page := &storage.Page{SiteID: f.site.ID, Path: "/dup", Code: 200, Content: "лис"}
	if err := f.ix.StorePage(ctx, page); err == nil {
		t.Fatal("StorePage(duplicate path) error = nil")
	}
	if page.ID != 0 {
		t.Errorf("page id after failed create = %d, want 0", page.ID)
	}
	if _, err := f.store.FindLemma(ctx, f.site.ID, "лис"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("lemma written by failed transaction: %v", err)
	}
}
