package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:     "vault",
	GroupID: "vault",
	Short:   "Create and inspect VAULT nodes",
}

var vaultCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a VAULT at path, auto-creating missing ancestor VAULTs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		uuid, err := a.CreateVault(cmdCtx.RootCtx, args[0])
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(map[string]string{"uuid": uuid, "path": args[0]})
			return
		}
		fmt.Printf("created vault %s (%s)\n", args[0], uuid)
	},
}

func init() {
	vaultCmd.AddCommand(vaultCreateCmd)
	rootCmd.AddCommand(vaultCmd)
}
