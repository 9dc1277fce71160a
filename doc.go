// Package pagecorpus curates a labelled dataset of PDF pages and suggests
// labels for new pages from the ones already curated.
//
// A dataset root holds one directory per dataset version:
//
//	dataset/
//	  aliases.json                 label alias table
//	  CURRENT                      newest finalized version
//	  v1/index/v1.jsonl            append-only curated log
//	  v1/images/<base>/<doc>_<page>.png
//	  v1/embeddings/<model>.vec    embedding snapshot
//	  v1/manifests/v1.json         immutable manifest
//	  v1/splits/v1_splits.json     document-level train/val/test split
//
// # Quick Start
//
//	ctx := context.Background()
//	c, _ := pagecorpus.Open(ctx, "./dataset",
//	    pagecorpus.WithEmbedder(embedder, "clip-vit-b32", 512))
//	defer c.Close()
//
//	rcpt, _ := c.Append(ctx, model.PageRecord{
//	    Document: "1040_2021.pdf",
//	    Page:     1,
//	    Label:    "1040_P1",
//	}, curated.WithImage("/tmp/render/1040_2021_1.png"))
//
// Appended pages are embedded in the background and become searchable once
// their vector lands in the similarity index. Embedding failures leave the
// page pending; Rebuild retries them.
//
// # Suggestions
//
//	page, prev := c.PageContext(model.PageKey{Document: "x.pdf", Page: 2})
//	res, _ := c.Suggest(ctx, vec, page, prev)
//	for _, s := range res.Items {
//	    fmt.Println(s.Rank, s.Label, s.Score, s.Boosts)
//	}
//
// Suggest returns ErrEmptyIndex while no page is searchable.
//
// # Versions
//
// Rebuild compacts the log of the open version into the next version,
// re-canonicalizing every label through the alias table, and switches the
// curator to it. Manifest finalizes a version and Publish uploads it to a
// blob store (local directory, S3 or MinIO).
//
// # Errors
//
// Errors map onto the package sentinels:
//
//	_, err := c.Append(ctx, rec)
//	if errors.Is(err, pagecorpus.ErrValidation) {
//	    var ve *pagecorpus.ValidationError
//	    errors.As(err, &ve)
//	}
package pagecorpus
