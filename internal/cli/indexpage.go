package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexPageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index-page <url>",
		Short: "Fetch and index a single page of a configured site",
		Long: `Fetch one page and replace its stored copy and index entries. The page
must belong to a site listed in the configuration.`,
		Example: `  searchengine index-page https://example.com/news/42`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.coordinator.IndexSinglePage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s\n", args[0])
			return nil
		},
	}
}
