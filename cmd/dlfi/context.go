// Package main is the dlfi command-line interface: a thin cobra
// wrapper over the dlfi package's Archive operations. One file per
// command group; a package-global CommandContext instead of loose
// globals.
package main

import (
	"context"

	"dlfi/internal/dlficonfig"
)

// CommandContext groups the runtime state every command needs, set up
// once in rootCmd's PersistentPreRun rather than threaded through
// every Run func individually.
type CommandContext struct {
	Root       string
	Actor      string
	JSONOutput bool
	Pretty     bool
	Passphrase string

	Config *dlficonfig.Config

	RootCtx    context.Context
	RootCancel context.CancelFunc
}

// cmdCtx is the single CommandContext instance populated by
// PersistentPreRun and read by every command's Run func.
var cmdCtx *CommandContext
