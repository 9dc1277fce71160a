package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pagecorpus"
	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/model"
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Append, compact and export curated pages",
}

// appendInput is one line of curate append input: a page record plus the
// rendered image to copy into the dataset.
type appendInput struct {
	model.PageRecord
	ImageSrc string `json:"image_src,omitempty"`
}

type appendSummary struct {
	Appended []curated.Receipt `json:"appended"`
	Failed   []appendFailure   `json:"failed,omitempty"`
}

type appendFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

var curateAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append curated page records",
	Long: `Append curated page records to the open dataset version.

Records are read as JSON lines from --file or stdin. A record may carry
"image_src", the rendered page image to copy into the dataset. Invalid
records are reported and skipped; valid ones are appended in order.

Examples:
  pagecorpus curate append -f reviewed.jsonl
  cat page.json | pagecorpus curate append`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		var in io.Reader = cmd.InOrStdin()
		if path, _ := cmd.Flags().GetString("file"); path != "" && path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			in = f
		}

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		var summary appendSummary

		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

		for line := 1; sc.Scan(); line++ {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}

			var rec appendInput
			if err := codec.Default.Unmarshal([]byte(text), &rec); err != nil {
				summary.Failed = append(summary.Failed, appendFailure{Line: line, Error: err.Error()})
				continue
			}

			var opts []curated.AppendOption
			if rec.ImageSrc != "" {
				opts = append(opts, curated.WithImage(rec.ImageSrc))
			}

			rcpt, err := c.Append(cmd.Context(), rec.PageRecord, opts...)
			if errors.Is(err, pagecorpus.ErrClosed) || errors.Is(err, context.Canceled) {
				return err
			}

			if err != nil {
				summary.Failed = append(summary.Failed, appendFailure{Line: line, Error: err.Error()})
				continue
			}

			summary.Appended = append(summary.Appended, rcpt)
		}

		if err := sc.Err(); err != nil {
			return err
		}

		if err := c.WaitEmbeddings(cmd.Context()); err != nil {
			return err
		}

		if err := output(summary); err != nil {
			return err
		}

		if len(summary.Failed) > 0 {
			return fmt.Errorf("%d of %d records rejected", len(summary.Failed), len(summary.Failed)+len(summary.Appended))
		}

		return nil
	},
}

var curateRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Compact the open version into the next one",
	Long: `Compact the open version into the next dataset version.

Pending embeddings are retried first. Every current record is
re-canonicalized through aliases.json, images are copied into the new
version and vectors are carried over. The source version is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Rebuild(cmd.Context())
		if res != nil {
			if oerr := output(res); oerr != nil && err == nil {
				err = oerr
			}
		}

		return err
	},
}

var curateExportCmd = &cobra.Command{
	Use:   "export <dst>",
	Short: "Copy current page images into one folder per label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		maxPerLabel, _ := cmd.Flags().GetInt("max-per-label")

		res, err := c.Export(cmd.Context(), args[0], maxPerLabel)
		if err != nil {
			return err
		}

		return output(res)
	},
}

var curateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show page counts and searchability of the open version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		return output(c.Status())
	},
}

var curateHistoryCmd = &cobra.Command{
	Use:   "history <document> <page>",
	Short: "Show every record of a page in log order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parsePageKey(args[0], args[1])
		if err != nil {
			return err
		}

		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		history := c.History(key)
		if len(history) == 0 {
			return fmt.Errorf("%w: %s", pagecorpus.ErrNotFound, key.ID())
		}

		return output(history)
	},
}

var curateDeleteCmd = &cobra.Command{
	Use:   "delete <document> [page]",
	Short: "Remove a page or a whole document from the curated set",
	Long: `Remove a page, or every page of a document, from the open version.

A tombstone record supersedes each page, so the history stays in the log.
Page images, vectors and similarity entries are dropped; the next rebuild
leaves the pages out of the new version.

Examples:
  pagecorpus curate delete 1040_2021.pdf 2
  pagecorpus curate delete 1040_2021.pdf`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 1 {
			rcpts, err := c.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return output(rcpts)
		}

		key, err := parsePageKey(args[0], args[1])
		if err != nil {
			return err
		}

		rcpt, err := c.Delete(cmd.Context(), key)
		if err != nil {
			return err
		}

		return output(rcpt)
	},
}

func init() {
	curateAppendCmd.Flags().StringP("file", "f", "-", "JSON lines file with page records (- for stdin)")
	curateExportCmd.Flags().Int("max-per-label", 0, "cap images per label (0 = no cap)")

	curateCmd.AddCommand(curateAppendCmd, curateDeleteCmd, curateRebuildCmd, curateExportCmd, curateStatusCmd, curateHistoryCmd)
}
