package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dlfi"
	"dlfi/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:     "query <expr>",
	GroupID: "query",
	Short:   "Execute a filter expression against the archive",
	Long: `Execute a filter expression against the live node graph.

Examples:
  dlfi query 'type:record tag:friend'
  dlfi query 'inside:/photos/2024 meta.camera~Pixel'
  dlfi query 'rel:DEPICTS=/people/alice'
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		results, err := a.Query(cmdCtx.RootCtx, args[0])
		if err != nil {
			reportQueryError(err, args[0])
		}

		if cmdCtx.JSONOutput {
			outputJSON(results)
			return
		}
		printResultTable(results)
	},
}

func reportQueryError(err error, text string) {
	var perr *dlfi.QueryParseError
	if e, ok := err.(*dlfi.QueryParseError); ok {
		perr = e
		fmt.Println(text)
		fmt.Println(strings.Repeat(" ", perr.Offset) + "^")
	}
	fatal(err)
}

func printResultTable(results []*dlfi.NodeSummary) {
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	t := ui.NewResultTable(ui.GetWidth()).
		Headers("TYPE", "PATH", "NAME", "TAGS").
		Rows(rowsFor(results)...)
	fmt.Println(t)
}

func rowsFor(results []*dlfi.NodeSummary) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{string(r.Type), r.Path, r.Name, strings.Join(r.Tags, ",")})
	}
	return rows
}

var autocompleteCmd = &cobra.Command{
	Use:     "autocomplete <expr> <cursor>",
	GroupID: "query",
	Short:   "List ranked completions for the query text at cursor",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var cursor int
		if _, err := fmt.Sscanf(args[1], "%d", &cursor); err != nil {
			fatal(fmt.Errorf("invalid cursor %q: %w", args[1], err))
		}

		a, err := openArchive()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		suggestions, err := a.Autocomplete(cmdCtx.RootCtx, args[0], cursor)
		if err != nil {
			fatal(err)
		}

		if cmdCtx.JSONOutput {
			outputJSON(suggestions)
			return
		}
		for _, s := range suggestions {
			fmt.Printf("%-24s %s\n", s.Display, s.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd, autocompleteCmd)
}
