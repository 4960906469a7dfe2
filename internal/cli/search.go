package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
)

var (
	searchSite   string
	searchOffset int
	searchLimit  int
	searchFormat string
)

func newSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed pages",
		Long: `Search the index for pages containing every lemma of the query.

Results are ranked by relevance relative to the best match, so the top
result always scores 1. Lemmas present on too many pages of a site are
ignored for that site.`,
		Example: `  searchengine search "быстрая лиса"
  searchengine search -s https://example.com -l 5 кошки
  searchengine search -f json --offset 20 новости`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().StringVarP(&searchSite, "site", "s", "", "Restrict the search to one configured site")
	cmd.Flags().IntVarP(&searchOffset, "offset", "o", 0, "Number of results to skip")
	cmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Maximum number of results")
	cmd.Flags().StringVarP(&searchFormat, "format", "f", "table", "Output format (table, json)")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.searcher.Search(cmd.Context(), strings.Join(args, " "), searchSite, searchOffset, searchLimit)
	if err != nil {
		return err
	}

	switch searchFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		return outputSearchTable(cmd, resp)
	}
}

func outputSearchTable(cmd *cobra.Command, resp *search.Response) error {
	if len(resp.Data) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results (%d matching pages)\n", resp.Count)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Relevance", "Site", "Page", "Title", "Snippet"})
	for _, res := range resp.Data {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.4f", res.Relevance),
			res.SiteName,
			res.URI,
			res.Title,
			textanalyzer.PlainText(res.Snippet),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", resp.Count})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
