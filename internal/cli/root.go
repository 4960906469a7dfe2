// Package cli implements the searchengine command: the HTTP server and
// one-shot crawl, page indexing, search and migration commands over the same
// configuration.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/logger"
)

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "searchengine",
	Short: "Crawl configured sites and search them by word lemmas",
	Long: `searchengine crawls the sites listed in its configuration, builds a
lemma based inverted index of their pages and answers ranked full-text
queries, either over HTTP (serve) or from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	rootCmd.AddCommand(
		newServeCommand(),
		newCrawlCommand(),
		newIndexPageCommand(),
		newSearchCommand(),
		newStatsCommand(),
		newMigrateCommand(),
		newLoadtestCommand(),
	)
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/development.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}
