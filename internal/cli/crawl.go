package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCrawlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl and index every configured site, then exit",
		Long: `Reindex every site listed in the configuration and wait for all crawls
to settle. An interrupt stops the crawls; the sites are recorded as failed
and the statistics gathered so far are printed.`,
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}
	cmd.Flags().StringVarP(&statsFormat, "format", "f", "table", "Statistics output format (table, json)")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coordinator.StartIndexing(ctx); err != nil {
		return err
	}
	slog.Info("crawl started", "sites", len(cfg.Sites))

	done := make(chan struct{})
	go func() {
		a.coordinator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Info("interrupt received, stopping crawl")
		if err := a.coordinator.StopIndexing(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("stopping crawl", "error", err)
		}
		<-done
	}

	stats, err := a.stats.Get(cmd.Context())
	if err != nil {
		return err
	}
	return writeStatistics(cmd.OutOrStdout(), stats, statsFormat)
}
