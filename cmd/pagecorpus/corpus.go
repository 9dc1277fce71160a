package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pagecorpus"
	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/corpus"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/internal/textutil"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/pdf"
)

var buildCorpusCmd = &cobra.Command{
	Use:   "build-corpus",
	Short: "Build the page corpus from PDFs and ground-truth JSON",
	Long: `Build the page corpus from *_enhanced.json ground-truth files and their PDFs.

Every ground-truth page becomes one page record with native text, header
text, regex flags and font histogram, written into one JSONL shard per
family and label. corpus_index.json and label_profiles.json summarize the
build. Documents whose PDF is missing or unreadable are skipped and listed
in the index; the build is swapped in atomically.

Examples:
  pagecorpus build-corpus
  pagecorpus build-corpus --max-docs 50 --concurrency 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		cc := cfg.Corpus
		if cmd.Flags().Changed("max-docs") {
			cc.MaxDocs, _ = cmd.Flags().GetInt("max-docs")
		}

		if cmd.Flags().Changed("concurrency") {
			cc.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		var registry *textutil.Registry
		if cc.Registry != "" {
			data, err := fs.ReadFile(fs.Default, cc.Registry)
			if err != nil {
				return err
			}

			registry = &textutil.Registry{}
			if err := codec.Default.Unmarshal(data, registry); err != nil {
				return err
			}
		}

		aliases := label.NewTable(fs.Default, filepath.Join(cfg.Dataset.Root, pagecorpus.AliasFileName))
		if err := aliases.Load(); err != nil {
			return err
		}

		extractor := pdf.NewExtractor(func(o *pdf.Options) {
			o.HeaderTopRatio = cc.HeaderTopRatio
		})

		b, err := corpus.NewBuilder(extractor, func(o *corpus.Options) {
			o.GroundTruthDir = cc.GroundTruthDir
			o.PDFDir = cc.PDFDir
			o.OutputDir = cc.OutputDir
			o.MaxDocs = cc.MaxDocs
			o.FamilyMap = cc.FamilyMap
			o.TopTerms = cc.TopTerms
			o.Concurrency = cc.Concurrency
			o.Registry = registry
			o.Aliases = aliases
			o.Logger = logger.Logger
		})
		if err != nil {
			return err
		}

		idx, err := b.Build(cmd.Context())
		if err != nil {
			return err
		}

		return output(idx.Totals)
	},
}

func init() {
	buildCorpusCmd.Flags().Int("max-docs", 0, "limit the number of ingested documents")
	buildCorpusCmd.Flags().Int("concurrency", 0, "documents extracted in parallel")
}
