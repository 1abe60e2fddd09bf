package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var partitionCmd = &cobra.Command{
	Use:     "partition",
	GroupID: "blob",
	Short:   "Configure blob container partitioning",
}

var partitionSetCmd = &cobra.Command{
	Use:   "set <bytes>",
	Short: "Set the partition rollover size (0 disables partitioning, reverting to loose files)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bytes, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid size %q: %w", args[0], err))
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.SetPartitionSize(cmdCtx.RootCtx, bytes); err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(map[string]int64{"partition_size_bytes": bytes})
			return
		}
		if bytes <= 0 {
			fmt.Println("partitioning disabled; future ingests use loose storage")
			return
		}
		fmt.Printf("future ingests roll over into new partitions at %d bytes\n", bytes)
	},
}

var vacuumCmd = &cobra.Command{
	Use:     "vacuum",
	GroupID: "blob",
	Short:   "Physically reclaim zero-ref-count blobs and compact partitions",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		result, err := a.Vacuum(cmdCtx.RootCtx)
		if err != nil {
			fatal(err)
		}
		if cmdCtx.JSONOutput {
			outputJSON(result)
			return
		}
		fmt.Printf("removed %d loose blobs, compacted %d partitions, reclaimed ~%d bytes\n",
			result.LooseBlobsRemoved, result.PartitionsCompacted, result.BytesReclaimedEstimate)
	},
}

func init() {
	partitionCmd.AddCommand(partitionSetCmd)
	rootCmd.AddCommand(partitionCmd, vacuumCmd)
}
