package main

import (
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Finalize the open version",
	Long: `Finalize the open version: save the embedding snapshot, assign the
document-level train/val/test split and write the immutable manifest.
A version has exactly one manifest; running it again fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.WaitEmbeddings(cmd.Context()); err != nil {
			return err
		}

		m, err := c.Manifest(cmd.Context())
		if err != nil {
			return err
		}

		return output(m)
	},
}
