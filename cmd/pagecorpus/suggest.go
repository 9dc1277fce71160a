package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/suggest"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Rank labels for a page",
	Long: `Rank labels for a page from the most similar curated pages.

The page vector comes from --vector, --vector-file (a JSON array) or
--image, which runs the configured embedding command. --document and
--page name the page inside the dataset so its auto label and the label of
the previous page can boost the ranking; --auto-label overrides the stored
auto label.

Examples:
  pagecorpus suggest --image render/w2_2022_1.png
  pagecorpus suggest --vector-file vec.json --document w2_2022.pdf --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		vec, err := readVector(cmd)
		if err != nil {
			return err
		}

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if vec == nil {
			image, _ := cmd.Flags().GetString("image")
			if len(cfg.Embedding.Command) == 0 {
				return errors.New("--image needs embedding.command")
			}

			e, err := newCommandEmbedder(cfg.Embedding.Command)
			if err != nil {
				return err
			}

			if vec, err = e.Embed(cmd.Context(), image); err != nil {
				return err
			}
		}

		var page, prev *suggest.Page

		if doc, _ := cmd.Flags().GetString("document"); doc != "" {
			p, _ := cmd.Flags().GetInt("page")
			page, prev = c.PageContext(model.PageKey{Document: doc, Page: p})
		}

		if auto, _ := cmd.Flags().GetString("auto-label"); auto != "" {
			if page == nil {
				page = &suggest.Page{}
			}

			page.AutoLabel = auto
		}

		res, err := c.Suggest(cmd.Context(), vec, page, prev)
		if err != nil {
			return err
		}

		return output(res)
	},
}

// readVector returns the vector given on the command line, or nil when the
// page image has to be embedded.
func readVector(cmd *cobra.Command) ([]float32, error) {
	raw, _ := cmd.Flags().GetString("vector")
	file, _ := cmd.Flags().GetString("vector-file")
	image, _ := cmd.Flags().GetString("image")

	set := 0
	for _, s := range []string{raw, file, image} {
		if s != "" {
			set++
		}
	}

	if set != 1 {
		return nil, errors.New("exactly one of --vector, --vector-file or --image is required")
	}

	switch {
	case raw != "":
		return parseVector(raw)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var vec []float32
		if err := codec.Default.Unmarshal(data, &vec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", file, err)
		}

		return vec, nil
	}

	return nil, nil
}

// parseVector parses comma separated numbers.
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))

	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}

		vec = append(vec, float32(f))
	}

	return vec, nil
}

// parsePageKey parses a document name and a 1-based page number.
func parsePageKey(document, page string) (model.PageKey, error) {
	p, err := strconv.Atoi(page)
	if err != nil || p < 1 {
		return model.PageKey{}, fmt.Errorf("invalid page %q", page)
	}

	return model.PageKey{Document: document, Page: p}, nil
}

func init() {
	suggestCmd.Flags().String("vector", "", "page vector as comma separated numbers")
	suggestCmd.Flags().String("vector-file", "", "file with the page vector as a JSON array")
	suggestCmd.Flags().String("image", "", "page image to embed with embedding.command")
	suggestCmd.Flags().String("document", "", "document of the page, for context boosts")
	suggestCmd.Flags().Int("page", 1, "1-based page number within --document")
	suggestCmd.Flags().String("auto-label", "", "classifier label of the page")
}
