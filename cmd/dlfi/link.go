package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:     "link <source> <target> <relation>",
	GroupID: "graph",
	Short:   "Create a labeled relationship from source to target",
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.Link(cmdCtx.RootCtx, args[0], args[1], args[2]); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("linked %s -[%s]-> %s\n", args[0], args[2], args[1])
	},
}

var unlinkCmd = &cobra.Command{
	Use:     "unlink <source> <target> <relation>",
	GroupID: "graph",
	Short:   "Remove a labeled relationship from source to target",
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		idempotent, _ := cmd.Flags().GetBool("idempotent")

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.Unlink(cmdCtx.RootCtx, args[0], args[1], args[2], idempotent); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("unlinked %s -[%s]-> %s\n", args[0], args[2], args[1])
	},
}

func init() {
	unlinkCmd.Flags().Bool("idempotent", false, "succeed even if the relationship does not exist")
	rootCmd.AddCommand(linkCmd, unlinkCmd)
}
