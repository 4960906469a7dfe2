package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
)

// Response is a fetched page. Any HTTP status is a valid Response; only
// transport failures are returned as errors.
type Response struct {
	URL        string
	StatusCode int
	// Message is the reason phrase of the status line, e.g. "Not Found".
	Message string
	// Content is the body decoded to UTF-8 and truncated to the configured
	// maximum number of characters.
	Content string
	// Doc is the parsed body. It is nil for non-200 responses.
	Doc *goquery.Document
}

// Fetcher performs single GET requests with a fixed user agent and referrer.
type Fetcher struct {
	client  *http.Client
	cfg     config.CrawlerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFetcher builds a Fetcher. m may be nil.
func NewFetcher(cfg config.CrawlerConfig, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "fetcher"),
	}
}

// Fetch downloads pageURL. Non-2xx answers are returned as a Response with
// the remote code and reason phrase. Network failures wrap ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Response, error) {
	start := time.Now()
	resp, err := f.fetch(ctx, pageURL)
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	f.observe(code, time.Since(start))
	if err != nil {
		f.logger.Debug("fetch failed", "url", pageURL, "error", err)
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", apperrors.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.cfg.Referrer != "" {
		req.Header.Set("Referer", f.cfg.Referrer)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetch, err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Message:    reasonPhrase(resp),
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return out, nil
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(body, f.cfg.MaxBodyBytes)
	}
	utf8Body, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", apperrors.ErrFetch, err)
	}
	raw, err := io.ReadAll(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", apperrors.ErrFetch, err)
	}

	out.Content = truncateRunes(string(raw), f.cfg.MaxContentLength)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing body: %v", apperrors.ErrFetch, err)
	}
	out.Doc = doc
	return out, nil
}

func (f *Fetcher) observe(code int, elapsed time.Duration) {
	if f.metrics == nil {
		return
	}
	f.metrics.PagesFetchedTotal.WithLabelValues(metrics.StatusClass(code)).Inc()
	f.metrics.FetchDuration.Observe(elapsed.Seconds())
}

func reasonPhrase(resp *http.Response) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return msg
}

// truncateRunes cuts s to at most n characters. n <= 0 disables the cap.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
