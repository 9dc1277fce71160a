package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pagecorpus"
	"github.com/hupe1980/pagecorpus/internal/config"
)

var (
	cfgFile      string
	datasetRoot  string
	logLevel     string
	outputFormat string

	manager *config.Manager
	logger  *pagecorpus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pagecorpus",
	Short: "Curate labelled PDF page datasets and suggest labels for new pages",
	Long: `pagecorpus builds a page corpus from PDFs and ground-truth JSON, keeps a
versioned, append-only curated index of labelled pages and suggests labels
for new pages from the most similar curated ones.

Typical flow:
  pagecorpus build-corpus                 # PDFs + ground truth -> corpus shards
  pagecorpus curate append -f pages.jsonl # add curated pages
  pagecorpus suggest --image page.png     # rank labels for a page
  pagecorpus curate rebuild               # compact into the next version
  pagecorpus manifest                     # finalize the version
  pagecorpus publish                      # upload it`,
	Version:       pagecorpus.ToolVersion,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		manager, err = config.NewManager(cfgFile)
		if err != nil {
			return err
		}

		v := manager.Viper()
		if err := v.BindPFlag("dataset.root", cmd.Root().PersistentFlags().Lookup("root")); err != nil {
			return err
		}

		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}

		cfg, err := manager.Reload()
		if err != nil {
			return err
		}

		logger, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}

		if used := manager.ConfigFileUsed(); used != "" {
			logger.Debug("config loaded", "file", used)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./pagecorpus.yaml or ~/.pagecorpus/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&datasetRoot, "root", "", "dataset root directory (overrides dataset.root)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(
		buildCorpusCmd,
		curateCmd,
		aliasCmd,
		indexCmd,
		suggestCmd,
		manifestCmd,
		publishCmd,
		configCmd,
		versionCmd,
	)
}

func newLogger(cfg config.LogConfig) (*pagecorpus.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return pagecorpus.NewLogger(slog.NewJSONHandler(os.Stderr, opts)), nil
	}

	return pagecorpus.NewLogger(slog.NewTextHandler(os.Stderr, opts)), nil
}
