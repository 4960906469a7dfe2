package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
)

var sitePages = map[string]string{
	"/": `<html><head><title>Главная</title></head><body>
		<p>Добро пожаловать</p>
		<a href="/fox">звери</a> <a href="/city">город</a>
	</body></html>`,
	"/fox": `<html><head><title>Лес</title></head><body>
		<p>Очень быстрая лиса бежит через лес</p>
	</body></html>`,
	"/city": `<html><head><title>Город</title></head><body>
		<p>Шумный город никогда не спит</p>
	</body></html>`,
}

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := sitePages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func useConfig(t *testing.T, siteURL, driver string) {
	t.Helper()
	c := config.Default()
	c.Database.Driver = driver
	c.Database.Path = filepath.Join(t.TempDir(), "index.db")
	c.Sites = []config.SiteConfig{{URL: siteURL, Name: "Test site"}}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg = c
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	registerer = prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCrawlThenSearch(t *testing.T) {
	srv := testSite(t)
	useConfig(t, srv.URL, config.DriverSQLite)

	out, err := execute(t, newCrawlCommand(), "--format", "json")
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	var stats statistics.Statistics
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("crawl output %q: %v", out, err)
	}
	if stats.Total.Sites != 1 || stats.Total.Pages != 3 || stats.Total.Indexing {
		t.Errorf("total = %+v", stats.Total)
	}
	if d := stats.Detailed[0]; d.Status != "INDEXED" || d.Pages != 3 || d.Lemmas == 0 {
		t.Errorf("detail = %+v", d)
	}

	out, err = execute(t, newSearchCommand(), "--format", "json", "лисы")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var resp search.Response
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("search output %q: %v", out, err)
	}
	if resp.Count != 1 || len(resp.Data) != 1 {
		t.Fatalf("search response = %+v", resp)
	}
	got := resp.Data[0]
	if got.URI != "/fox" || got.Title != "Лес" || got.Relevance != 1 || got.SiteName != "Test site" {
		t.Errorf("result = %+v", got)
	}
	if !strings.Contains(got.Snippet, "<b>лиса</b>") {
		t.Errorf("snippet = %q", got.Snippet)
	}

	out, err = execute(t, newSearchCommand(), "лисы")
	if err != nil {
		t.Fatalf("search table: %v", err)
	}
	if !strings.Contains(out, "/fox") || !strings.Contains(out, "Очень быстрая лиса") {
		t.Errorf("table output:\n%s", out)
	}
}

func TestIndexPageCommand(t *testing.T) {
	srv := testSite(t)
	useConfig(t, srv.URL, config.DriverSQLite)

	out, err := execute(t, newIndexPageCommand(), srv.URL+"/city")
	if err != nil {
		t.Fatalf("index-page: %v", err)
	}
	if !strings.Contains(out, "indexed "+srv.URL+"/city") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, newStatsCommand(), "--format", "json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats statistics.Statistics
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output %q: %v", out, err)
	}
	if stats.Total.Pages != 1 || stats.Detailed[0].Status != "INDEXED" {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := execute(t, newIndexPageCommand(), "http://elsewhere.test/page"); err == nil {
		t.Error("index-page accepted a page outside the configured sites")
	}
}

func TestMigrate(t *testing.T) {
	useConfig(t, "http://a.test", config.DriverSQLite)
	out, err := execute(t, newMigrateCommand())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "schema up to date (sqlite)") {
		t.Errorf("output = %q", out)
	}

	useConfig(t, "http://a.test", config.DriverMemory)
	if _, err := execute(t, newMigrateCommand()); err == nil {
		t.Error("migrate succeeded for the memory driver")
	}
}

func TestWriteStatisticsTable(t *testing.T) {
	var out bytes.Buffer
	stats := &statistics.Statistics{
		Total: statistics.Total{Sites: 2, Pages: 7, Lemmas: 40},
		Detailed: []statistics.SiteDetail{
			{URL: "http://a.test", Name: "A", Status: "FAILED", StatusTime: 1700000000000, Error: "stopped by user", Pages: 7, Lemmas: 40},
			{URL: "http://b.test", Name: "B"},
		},
	}
	if err := writeStatistics(&out, stats, "table"); err != nil {
		t.Fatal(err)
	}
	table := strings.ToLower(out.String())
	for _, want := range []string{"http://a.test", "failed", "stopped by user", "2 sites", "idle"} {
		if !strings.Contains(table, want) {
			t.Errorf("table lacks %q:\n%s", want, out.String())
		}
	}
}
