package pagecorpus_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/pagecorpus"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/model"
)

func Example() {
	dir, _ := os.MkdirTemp("", "pagecorpus-example")
	defer os.RemoveAll(dir)

	// one-hot vectors keyed by the rendered file name
	vectors := map[string][]float32{
		"1040.png": {1, 0, 0},
		"w2.png":   {0, 1, 0},
	}
	embedder := embedding.EmbedderFunc(func(_ context.Context, imagePath string) ([]float32, error) {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, err
		}
		return vectors[string(data)], nil
	})

	ctx := context.Background()

	c, err := pagecorpus.Open(ctx, filepath.Join(dir, "dataset"), pagecorpus.WithEmbedder(embedder, "demo", 3))
	if err != nil {
		panic(err)
	}
	defer c.Close()

	for _, p := range []struct {
		doc, label, render string
	}{
		{"1040_2021.pdf", "1040_P1", "1040.png"},
		{"w2_2022.pdf", "W2", "w2.png"},
	} {
		src := filepath.Join(dir, p.render)
		_ = os.WriteFile(src, []byte(p.render), 0o644)

		rcpt, err := c.Append(ctx, model.PageRecord{Document: p.doc, Page: 1, Label: p.label}, curated.WithImage(src))
		if err != nil {
			panic(err)
		}
		fmt.Println(rcpt.ID, rcpt.Label)
	}

	_ = c.WaitEmbeddings(ctx)

	res, err := c.Suggest(ctx, []float32{0.1, 0.9, 0}, nil, nil)
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Items[0].Label)

	// Output:
	// 1040_2021.pdf#1@v1 1040_P1
	// w2_2022.pdf#1@v1 W2
	// W2
}
