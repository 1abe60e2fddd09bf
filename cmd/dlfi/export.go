package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export <dir>",
	GroupID: "query",
	Short:   "Project the live archive onto a plain filesystem tree",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		result, err := a.Export(cmdCtx.RootCtx, args[0])
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(result)
			return
		}
		fmt.Printf("exported %d nodes, %d files to %s\n", result.NodesWritten, result.FilesWritten, args[0])
		for _, s := range result.Skipped {
			fmt.Printf("  skipped %s (%s): %s\n", s.DisplayName, s.RecordPath, s.Reason)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
