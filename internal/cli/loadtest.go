package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultLoadQueries = []string{
	"новости города",
	"купить телефон",
	"ремонт ноутбука",
	"расписание автобусов",
	"погода на неделю",
	"быстрая доставка",
	"скидки и акции",
	"отзывы покупателей",
}

type loadOptions struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
	Site        string
	Limit       int
}

var loadOpts loadOptions

func newLoadtestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Replay search queries against a running server",
		Long: `Send search requests from concurrent workers for a fixed duration and
report throughput, latency percentiles and status codes. Workers cycle
through the query list starting at different offsets.`,
		Example: `  searchengine loadtest -u http://localhost:8080 -c 20 -d 1m
  searchengine loadtest -q "лиса" -q "кошка" --site https://example.com`,
		Args: cobra.NoArgs,
		RunE: runLoadtest,
	}

	cmd.Flags().StringVarP(&loadOpts.BaseURL, "url", "u", "http://localhost:8080", "Base URL of the search server")
	cmd.Flags().IntVarP(&loadOpts.Concurrency, "concurrency", "c", 10, "Number of concurrent workers")
	cmd.Flags().DurationVarP(&loadOpts.Duration, "duration", "d", 30*time.Second, "Test duration")
	cmd.Flags().StringArrayVarP(&loadOpts.Queries, "query", "q", defaultLoadQueries, "Query to send (repeatable)")
	cmd.Flags().StringVar(&loadOpts.Site, "site", "", "Restrict queries to one site")
	cmd.Flags().IntVarP(&loadOpts.Limit, "limit", "l", 10, "Page size of each search")

	return cmd
}

func runLoadtest(cmd *cobra.Command, args []string) error {
	if loadOpts.Concurrency <= 0 || len(loadOpts.Queries) == 0 {
		return errors.New("loadtest needs at least one worker and one query")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Target %s, %d workers for %s, %d queries\n",
		loadOpts.BaseURL, loadOpts.Concurrency, loadOpts.Duration, len(loadOpts.Queries))

	stats, err := runLoad(cmd.Context(), loadOpts)
	if err != nil {
		return err
	}
	writeLoadReport(out, stats, loadOpts.Duration)
	if stats.total.Load() == 0 {
		return errors.New("no requests completed, is the server running?")
	}
	return nil
}

type loadStats struct {
	total   atomic.Int64
	success atomic.Int64
	errors  atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func (s *loadStats) record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func runLoad(ctx context.Context, opts loadOptions) (*loadStats, error) {
	stats := &loadStats{statusCodes: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.Concurrency * 2,
			MaxIdleConnsPerHost: opts.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	base := strings.TrimRight(opts.BaseURL, "/") + "/api/search"
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := url.Values{"query": {opts.Queries[i%len(opts.Queries)]}, "limit": {fmt.Sprint(opts.Limit)}}
				if opts.Site != "" {
					q.Set("site", opts.Site)
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	return stats, g.Wait()
}

func writeLoadReport(w io.Writer, stats *loadStats, duration time.Duration) {
	total := stats.total.Load()
	errs := stats.errors.Load()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Results")
	t.AppendRow(table.Row{"Requests", total})
	t.AppendRow(table.Row{"Successful", stats.success.Load()})
	t.AppendRow(table.Row{"Errors", errs})
	if total > 0 {
		t.AppendRow(table.Row{"Error rate", fmt.Sprintf("%.2f%%", float64(errs)/float64(total)*100)})
		t.AppendRow(table.Row{"Requests/sec", fmt.Sprintf("%.2f", float64(total)/duration.Seconds())})
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(codes))
	for _, code := range codes {
		counts[code] = stats.statusCodes[code]
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		t.AppendSeparator()
		t.AppendRow(table.Row{"Latency min", latencies[0]})
		t.AppendRow(table.Row{"Latency avg", avg})
		for _, p := range []float64{50, 90, 95, 99} {
			t.AppendRow(table.Row{fmt.Sprintf("Latency p%g", p), percentile(latencies, p)})
		}
		t.AppendRow(table.Row{"Latency max", latencies[len(latencies)-1]})
		t.AppendRow(table.Row{"Latency stddev", time.Duration(math.Sqrt(sq / float64(len(latencies))))})
	}

	if len(codes) > 0 {
		sort.Ints(codes)
		t.AppendSeparator()
		for _, code := range codes {
			t.AppendRow(table.Row{fmt.Sprintf("HTTP %d", code), counts[code]})
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
