package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"dlfi"
	"dlfi/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "blob",
	Short:   "Inspect archive health: object counts, storage mode, pending reclamation",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		report, err := a.Doctor(cmdCtx.RootCtx)
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(report)
			return
		}
		if cmdCtx.Pretty {
			printDoctorMarkdown(report)
			return
		}
		printDoctorPlain(report)
	},
}

func printDoctorPlain(r *dlfi.DoctorReport) {
	fmt.Printf("archive      %s\n", r.Root)
	fmt.Printf("vaults       %d\n", r.Vaults)
	fmt.Printf("records      %d\n", r.Records)
	fmt.Printf("tags         %d\n", r.Tags)
	fmt.Printf("relations    %d\n", r.Relations)
	fmt.Printf("blobs        %d (%d loose, %d partitions, %d bytes)\n",
		r.Blobs, r.LooseBlobs, r.Partitions, r.TotalBlobSize)
	fmt.Printf("encryption   %s\n", onOff(r.Encrypted))
	fmt.Printf("partitioning %s\n", partitioningDesc(r.PartitionSizeBytes))
	for _, w := range r.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

// printDoctorMarkdown renders the report as a glamour-styled markdown
// document; falls back to the plain renderer if the terminal profile
// cannot be set up.
func printDoctorMarkdown(r *dlfi.DoctorReport) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Archive health\n\n`%s`\n\n", r.Root)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Vaults | %d |\n", r.Vaults)
	fmt.Fprintf(&b, "| Records | %d |\n", r.Records)
	fmt.Fprintf(&b, "| Tags | %d |\n", r.Tags)
	fmt.Fprintf(&b, "| Relation labels | %d |\n", r.Relations)
	fmt.Fprintf(&b, "| Blobs | %d (%d loose, %d partitions) |\n", r.Blobs, r.LooseBlobs, r.Partitions)
	fmt.Fprintf(&b, "| Blob bytes | %d |\n", r.TotalBlobSize)
	fmt.Fprintf(&b, "| Encryption | %s |\n", onOff(r.Encrypted))
	fmt.Fprintf(&b, "| Partitioning | %s |\n", partitioningDesc(r.PartitionSizeBytes))
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(ui.GlamourStyle()),
		glamour.WithWordWrap(ui.GetWidth()),
	)
	if err != nil {
		printDoctorPlain(r)
		return
	}
	out, err := renderer.Render(b.String())
	if err != nil {
		printDoctorPlain(r)
		return
	}
	fmt.Print(out)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func partitioningDesc(bytes int64) string {
	if bytes <= 0 {
		return "disabled (loose storage)"
	}
	return fmt.Sprintf("%d byte rollover", bytes)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
