package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var blobCmd = &cobra.Command{
	Use:     "blob",
	GroupID: "blob",
	Short:   "Read plaintext blob bytes directly from the content-addressed store",
}

var blobGetCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Write a blob's plaintext bytes to stdout (or --out)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		r, err := a.OpenBlob(cmdCtx.RootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		defer r.Close()

		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				fatal(fmt.Errorf("create %s: %w", out, err))
			}
			defer f.Close()
			w = f
		}
		if _, err := io.Copy(w, r); err != nil {
			fatal(fmt.Errorf("read blob %s: %w", args[0], err))
		}
	},
}

var blobPinCmd = &cobra.Command{
	Use:   "pin <hash>",
	Short: "Hold a reference on a blob so vacuum cannot reclaim it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.PinBlob(cmdCtx.RootCtx, args[0]); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("pinned %s\n", args[0])
	},
}

var blobUnpinCmd = &cobra.Command{
	Use:   "unpin <hash>",
	Short: "Release an explicit pin on a blob",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.UnpinBlob(cmdCtx.RootCtx, args[0]); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]bool{"ok": true})
			return
		}
		fmt.Printf("unpinned %s\n", args[0])
	},
}

func init() {
	blobGetCmd.Flags().String("out", "", "write to this path instead of stdout")
	blobCmd.AddCommand(blobGetCmd, blobPinCmd, blobUnpinCmd)
	rootCmd.AddCommand(blobCmd)
}
