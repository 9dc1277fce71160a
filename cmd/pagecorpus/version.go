package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pagecorpus"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// no config needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pagecorpus %s\n", pagecorpus.ToolVersion)
		fmt.Printf("  Go:     %s\n", runtime.Version())

		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Printf("  Commit: %s\n", s.Value)
				case "vcs.time":
					fmt.Printf("  Date:   %s\n", s.Value)
				}
			}
		}
	},
}
