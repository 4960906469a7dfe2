package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

func TestFetcherOK(t *testing.T) {
	headers := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- [2]string{r.UserAgent(), r.Referer()}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Лес</title></head><body>`+strings.Repeat("ё", 50)+`</body></html>`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxContentLength = 30
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	resp, err := NewFetcher(cfg, m).Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Doc == nil {
		t.Fatalf("Fetch() = %+v", resp)
	}
	if n := utf8.RuneCountInString(resp.Content); n != 30 {
		t.Errorf("content length = %d runes, want 30", n)
	}
	if !utf8.ValidString(resp.Content) {
		t.Error("truncated content is not valid UTF-8")
	}
	if title := resp.Doc.Find("title").Text(); title != "Лес" {
		t.Errorf("title = %q", title)
	}
	if got := <-headers; got[0] != cfg.UserAgent || got[1] != cfg.Referrer {
		t.Errorf("headers = %q", got)
	}
	if got := testutil.ToFloat64(m.PagesFetchedTotal.WithLabelValues("2xx")); got != 1 {
		t.Errorf("2xx fetches = %v, want 1", got)
	}
}

func TestFetcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := NewFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v, non-2xx must not be an error", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || resp.Message != "Service Unavailable" || resp.Doc != nil {
		t.Errorf("Fetch() = %d %q", resp.StatusCode, resp.Message)
	}
}

func TestFetcherNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewFetcher(testConfig(), nil).Fetch(context.Background(), addr)
	if !errors.Is(err, apperrors.ErrFetch) {
		t.Errorf("Fetch(closed server) error = %v, want ErrFetch", err)
	}
}

func TestFetcherDecodesCharset(t *testing.T) {
	// "Кот" in windows-1251.
	body := []byte{0xCA, 0xEE, 0xF2}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write(append([]byte("<p>"), append(body, []byte("</p>")...)...))
	}))
	defer srv.Close()

	resp, err := NewFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Doc.Find("p").Text(); got != "Кот" {
		t.Errorf("decoded text = %q, want Кот", got)
	}
}
