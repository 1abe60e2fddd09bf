package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"dlfi"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "vault",
	Short:   "Create and manage RECORD nodes",
}

var recordCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a RECORD at path, auto-creating missing ancestor VAULTs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		metaStr, _ := cmd.Flags().GetString("meta")
		meta := json.RawMessage(metaStr)
		if metaStr == "" {
			meta = json.RawMessage(`{}`)
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		uuid, err := a.CreateRecord(cmdCtx.RootCtx, args[0], meta)
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(map[string]string{"uuid": uuid, "path": args[0]})
			return
		}
		fmt.Printf("created record %s (%s)\n", args[0], uuid)
	},
}

var recordAppendFileCmd = &cobra.Command{
	Use:   "append-file <path> <file>",
	Short: "Ingest a file through the blob store and bind it to the record at path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		recordPath, srcPath := args[0], args[1]

		f, err := os.Open(srcPath)
		if err != nil {
			fatal(fmt.Errorf("open %s: %w", srcPath, err))
		}
		defer f.Close()

		displayName, _ := cmd.Flags().GetString("display-name")
		if displayName == "" {
			displayName = srcPath
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		position, hash, deduped, err := a.AppendFile(cmdCtx.RootCtx, recordPath, displayName, f)
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(map[string]any{
				"position": position, "hash": hash, "deduped": deduped,
			})
			return
		}
		dedupNote := ""
		if deduped {
			dedupNote = " (deduped, blob already stored)"
		}
		fmt.Printf("appended %s at position %d, hash %s%s\n", displayName, position, hash, dedupNote)
	},
}

var recordRemoveFileCmd = &cobra.Command{
	Use:   "remove-file <path> <position>",
	Short: "Unbind the file at position from the record at path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		position, err := strconv.Atoi(args[1])
		if err != nil {
			fatal(fmt.Errorf("invalid position %q: %w", args[1], err))
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.RemoveFile(cmdCtx.RootCtx, args[0], position); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("removed file at position %d from %s\n", position, args[0])
	},
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <path>",
	Short: "Replace a record's name, metadata, and/or tag set",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("rename")
		metaStr, _ := cmd.Flags().GetString("meta")
		tags, _ := cmd.Flags().GetStringSlice("tags")

		opts := dlfi.UpdateOpts{Name: name}
		if metaStr != "" {
			opts.Metadata = json.RawMessage(metaStr)
		}
		if cmd.Flags().Changed("tags") {
			opts.Tags = tags
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.UpdateNode(cmdCtx.RootCtx, args[0], opts); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("updated %s\n", args[0])
	},
}

var recordMergeMetaCmd = &cobra.Command{
	Use:   "merge-meta <path> <json-patch>",
	Short: "Shallow-merge a JSON object into a node's metadata",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.MergeMetadata(cmdCtx.RootCtx, args[0], json.RawMessage(args[1])); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("merged metadata into %s\n", args[0])
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <path> [path...]",
	Short: "Delete one or more nodes and their subtrees",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if len(args) == 1 {
			if err := a.Delete(cmdCtx.RootCtx, args[0]); err != nil {
				fatal(err)
			}
			if cmdCtx.JSONOutput {
				outputJSON(map[string]bool{"ok": true})
				return
			}
			fmt.Printf("deleted %s\n", args[0])
			return
		}

		results := a.BulkDelete(cmdCtx.RootCtx, args)
		if cmdCtx.JSONOutput {
			outputJSON(results)
			return
		}
		failed := 0
		for i, r := range results {
			if r.Error != "" {
				failed++
				fmt.Printf("FAILED %s: %s\n", args[i], r.Error)
			} else {
				fmt.Printf("deleted %s (%s)\n", args[i], r.UUID)
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	recordCreateCmd.Flags().String("meta", "", "JSON object to store as initial metadata")

	recordAppendFileCmd.Flags().String("display-name", "", "display name for the bound file (default: source path)")

	recordUpdateCmd.Flags().String("rename", "", "new name for the node")
	recordUpdateCmd.Flags().String("meta", "", "JSON object replacing the node's metadata")
	recordUpdateCmd.Flags().StringSlice("tags", nil, "full tag set replacing the node's current tags")

	recordCmd.AddCommand(recordCreateCmd, recordAppendFileCmd, recordRemoveFileCmd, recordUpdateCmd, recordMergeMetaCmd, recordDeleteCmd)
	rootCmd.AddCommand(recordCmd)
}
