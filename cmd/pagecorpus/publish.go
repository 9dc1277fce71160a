package main

import (
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the finalized version to the configured blob store",
	Long: `Upload the finalized open version to the publish.backend blob store
(local, s3 or minio) and move the published-version pointer forward.
The version needs a manifest first.

Examples:
  pagecorpus publish
  PAGECORPUS_PUBLISH_BACKEND=s3 PAGECORPUS_PUBLISH_S3_BUCKET=datasets pagecorpus publish`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, true)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Publish(cmd.Context())
		if err != nil {
			return err
		}

		return output(res)
	},
}
