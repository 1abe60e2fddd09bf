package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	GroupID: "graph",
	Short:   "Add and remove tags on a node",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <path> <tag>",
	Short: "Add a tag to the node at path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.AddTag(cmdCtx.RootCtx, args[0], args[1]); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("tagged %s with %q\n", args[0], args[1])
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <path> <tag>",
	Short: "Remove a tag from the node at path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.RemoveTag(cmdCtx.RootCtx, args[0], args[1]); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("removed tag %q from %s\n", args[1], args[0])
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd)
	rootCmd.AddCommand(tagCmd)
}
