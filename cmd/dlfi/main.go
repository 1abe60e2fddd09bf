package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"dlfi"
	"dlfi/internal/dlficonfig"
)

var rootCmd = &cobra.Command{
	Use:   "dlfi",
	Short: "DL-FI: a local-first content-addressable digital asset archive",
	Long: `dlfi manages a DL-FI archive: a content-addressable blob store
with a graph of VAULT and RECORD nodes layered on top, queryable with a
small filter language and exportable to a plain directory tree.

Every subcommand operates on the archive rooted at --root (default: the
current directory, or the default_archive entry in the user config
file). Archives are single-writer: only one dlfi process may hold an
archive open at a time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initCommandContext(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cmdCtx != nil && cmdCtx.RootCancel != nil {
			cmdCtx.RootCancel()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "vault", Title: "Vault & record commands:"},
		&cobra.Group{ID: "graph", Title: "Graph commands:"},
		&cobra.Group{ID: "query", Title: "Query & export commands:"},
		&cobra.Group{ID: "blob", Title: "Blob & maintenance commands:"},
		&cobra.Group{ID: "setup", Title: "Setup commands:"},
	)

	rootCmd.PersistentFlags().StringP("root", "C", "", "archive root directory (default: config default_archive, else cwd)")
	rootCmd.PersistentFlags().String("actor", "", "actor name recorded in logs (default: config actor)")
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON instead of tables")
	rootCmd.PersistentFlags().Bool("pretty", false, "render markdown-formatted output where supported")
	rootCmd.PersistentFlags().String("passphrase", "", "archive passphrase (prompted interactively if the archive is encrypted and this is empty)")
	rootCmd.PersistentFlags().String("config", "", "path to the user config file (default: "+defaultConfigHint()+")")
}

func defaultConfigHint() string {
	p, err := dlficonfig.DefaultPath()
	if err != nil {
		return "$XDG_CONFIG_HOME/dlfi/config.toml"
	}
	return p
}

// initCommandContext builds cmdCtx from flags layered over the user
// config file, and installs a context cancelled on SIGINT/SIGTERM so a
// long vacuum or export can be interrupted cleanly.
func initCommandContext(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := dlficonfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		root = cfg.DefaultArchive
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve archive root: %w", err)
	}

	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		actor = cfg.Actor
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !jsonOutput {
		jsonOutput = cfg.JSON
	}
	pretty, _ := cmd.Flags().GetBool("pretty")
	if !pretty {
		pretty = cfg.Pretty
	}

	passphrase, _ := cmd.Flags().GetString("passphrase")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmdCtx = &CommandContext{
		Root:       root,
		Actor:      actor,
		JSONOutput: jsonOutput,
		Pretty:     pretty,
		Passphrase: passphrase,
		Config:     cfg,
		RootCtx:    ctx,
		RootCancel: cancel,
	}
	return nil
}

// openArchive opens the archive at cmdCtx.Root, prompting for a
// passphrase via huh when the archive is encrypted and none was
// supplied with --passphrase.
func openArchive() (*dlfi.Archive, error) {
	a, err := dlfi.Open(cmdCtx.Root, cmdCtx.Passphrase)
	if err != nil && errors.Is(err, dlfi.ErrDecryptionFailed) && cmdCtx.Passphrase == "" {
		passphrase, promptErr := promptPassphrase()
		if promptErr != nil {
			return nil, promptErr
		}
		cmdCtx.Passphrase = passphrase
		return dlfi.Open(cmdCtx.Root, passphrase)
	}
	return a, err
}

func promptPassphrase() (string, error) {
	var passphrase string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Archive passphrase").
				EchoMode(huh.EchoModePassword).
				Value(&passphrase),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return passphrase, nil
}

// fatal prints err to stderr (as a JSON envelope when --json is set)
// and exits non-zero.
func fatal(err error) {
	if cmdCtx != nil && cmdCtx.JSONOutput {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "dlfi: %v\n", err)
	}
	os.Exit(1)
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(fmt.Errorf("encode output: %w", err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
