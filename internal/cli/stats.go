package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
)

var statsFormat string

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics per site",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	cmd.Flags().StringVarP(&statsFormat, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.stats.Get(cmd.Context())
	if err != nil {
		return err
	}
	return writeStatistics(cmd.OutOrStdout(), stats, statsFormat)
}

func writeStatistics(w io.Writer, stats *statistics.Statistics, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Site", "Name", "Status", "Updated", "Pages", "Lemmas", "Error"})
	for _, d := range stats.Detailed {
		status := d.Status
		if status == "" {
			status = "-"
		}
		t.AppendRow(table.Row{d.URL, d.Name, status, formatStatusTime(d.StatusTime), d.Pages, d.Lemmas, d.Error})
	}
	indexing := "idle"
	if stats.Total.Indexing {
		indexing = "indexing"
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d sites", stats.Total.Sites), "", indexing, "", stats.Total.Pages, stats.Total.Lemmas, ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

func formatStatusTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}
