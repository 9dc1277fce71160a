package main

import (
	"github.com/spf13/cobra"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage the label alias table",
	Long: `Manage aliases.json, the table that maps alias labels onto canonical ones.

Suggestions resolve aliases immediately. Stored records keep their label
until the next curate rebuild re-canonicalizes them.`,
}

var aliasSetCmd = &cobra.Command{
	Use:   "set <alias> <canonical>",
	Short: "Map an alias label onto a canonical label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.SetAlias(args[0], args[1]); err != nil {
			return err
		}

		return output(c.Aliases())
	},
}

var aliasListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the alias table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		c, err := openCurator(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer c.Close()

		return output(c.Aliases())
	},
}

func init() {
	aliasCmd.AddCommand(aliasSetCmd, aliasListCmd)
}
