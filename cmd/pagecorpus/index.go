package main

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the similarity index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Retry pending embeddings and rebuild the similarity index",
	Long: `Retry pending embeddings and rebuild the similarity index of the open
version from every stored vector. Queries keep hitting the previous index
until the new one is swapped in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		stamp, err := c.RebuildIndex(cmd.Context())
		if err != nil {
			return err
		}

		return output(stamp)
	},
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
}
