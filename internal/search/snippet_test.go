package search

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
)

func docOf(t *testing.T, content string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSearchSnippetRussian(t *testing.T) {
	analyzer, err := textanalyzer.NewRussian()
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture()
	site := f.site(t, "http://a.test", "A")
	ix := indexer.New(f.store, analyzer, nil, nil)
	ctx := context.Background()
	pages := map[string]string{
		"/fox":   `<html><head><title>Лес</title></head><body><div><p>Очень быстрая лиса бежит</p></div></body></html>`,
		"/house": `<p>Большой дом</p>`,
		"/yard":  `<p>Зелёный двор</p>`,
	}
	for path, content := range pages {
		p := &storage.Page{SiteID: site.ID, Path: path, Code: 200, Content: content}
		if err := f.store.CreatePage(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := ix.IndexPage(ctx, p.ID, site.ID, content); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := New(f.store, analyzer, f.sites, f.cfg, nil, nil).Search(ctx, "лисы", "", 0, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("Count = %d, want 1", resp.Count)
	}
	got := resp.Data[0]
	if got.Title != "Лес" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Snippet != "Очень быстрая <b>лиса</b> бежит" {
		t.Errorf("snippet = %q", got.Snippet)
	}
}

func TestSnippetFallsBackToInflectedWord(t *testing.T) {
	e := New(nil, lemmaTable{"мыши": "мышь"}, nil, newFixture().cfg, nil, nil)
	doc := docOf(t, `<h1>Заголовок</h1><p>Кот ловит Мыши.</p>`)
	if got, want := e.snippet(doc, "мышь"), "Кот ловит <b>Мыши</b>."; got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
	if got := e.snippet(doc, "слон"); got != "" {
		t.Errorf("snippet without match = %q, want empty", got)
	}
}

func TestSnippetWindowAndEscaping(t *testing.T) {
	cfg := newFixture().cfg
	cfg.SnippetRadius = 10
	e := New(nil, lemmaTable{}, nil, cfg, nil, nil)
	before := strings.Repeat("а", 30)
	after := strings.Repeat("б", 30)
	doc := docOf(t, `<p>`+before+` <i>&lt;кот&gt;</i> `+after+`</p>`)

	got := e.snippet(doc, "кот")
	want := "...аааааааа &lt;<b>кот</b>&gt; бббббббб..."
	if got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(got, ellipsis), ellipsis)
	inner = strings.NewReplacer("<b>", "", "</b>", "", "&lt;", "<", "&gt;", ">").Replace(inner)
	if n := utf8.RuneCountInString(inner); n != 10+3+10 {
		t.Errorf("window = %d runes, want 23", n)
	}
}

func TestSnippetPrefersInnermostBlock(t *testing.T) {
	e := New(nil, lemmaTable{"кота": "кот"}, nil, newFixture().cfg, nil, nil)
	doc := docOf(t, `<div><h2>Меню</h2><section><p>Про кота</p><p>Ещё</p></section></div>`)
	if got := e.snippet(doc, "кот"); got != "Про <b>кота</b>" {
		t.Errorf("snippet = %q", got)
	}
}

func TestSearchSnippetSkipsWordsSharingPrefix(t *testing.T) {
	analyzer, err := textanalyzer.NewRussian()
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture()
	site := f.site(t, "http://a.test", "A")
	ix := indexer.New(f.store, analyzer, nil, nil)
	ctx := context.Background()
	pages := map[string]string{
		"/cat":   `<p>Который час? Кот спит.</p>`,
		"/house": `<p>Большой дом</p>`,
		"/yard":  `<p>Зелёный двор</p>`,
	}
	for path, content := range pages {
		p := &storage.Page{SiteID: site.ID, Path: path, Code: 200, Content: content}
		if err := f.store.CreatePage(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := ix.IndexPage(ctx, p.ID, site.ID, content); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := New(f.store, analyzer, f.sites, f.cfg, nil, nil).Search(ctx, "кот", "", 0, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("Count = %d, want 1", resp.Count)
	}
	if got, want := resp.Data[0].Snippet, "Который час? <b>Кот</b> спит."; got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
}

func TestSnippetMatchesWholeWords(t *testing.T) {
	e := New(nil, lemmaTable{"котлеты": "котлета"}, nil, newFixture().cfg, nil, nil)
	doc := docOf(t, `<p>Котлеты готовы</p><p>Рыжий кот</p>`)
	if got, want := e.snippet(doc, "кот"), "Рыжий <b>кот</b>"; got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
}

func TestIndexWord(t *testing.T) {
	tests := []struct {
		text, word string
		start, end int
	}{
		{"Который час? Кот спит", "кот", 13, 16},
		{"кот", "кот", 0, 3},
		{"котёнок", "кот", -1, -1},
		{"полукот", "кот", -1, -1},
		{"кот", "", -1, -1},
	}
	for _, tt := range tests {
		start, end := indexWord([]rune(tt.text), []rune(tt.word))
		if start != tt.start || end != tt.end {
			t.Errorf("indexWord(%q, %q) = %d,%d, want %d,%d", tt.text, tt.word, start, end, tt.start, tt.end)
		}
	}
}

func TestIndexFold(t *testing.T) {
	tests := []struct {
		text, needle string
		start, end   int
	}{
		{"Быстрая ЛИСА", "лиса", 8, 12},
		{"ёлка", "Ёл", 0, 2},
		{"кот", "котёнок", -1, -1},
		{"кот", "", -1, -1},
	}
	for _, tt := range tests {
		start, end := indexFold([]rune(tt.text), []rune(tt.needle))
		if start != tt.start || end != tt.end {
			t.Errorf("indexFold(%q, %q) = %d,%d, want %d,%d", tt.text, tt.needle, start, end, tt.start, tt.end)
		}
	}
}
