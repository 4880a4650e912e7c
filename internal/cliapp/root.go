// Package cliapp is the thin command-line carrier over the sync engine:
// it parses flags, resolves the current cast root, and calls into
// internal/configio, internal/registry, and internal/cascade — all
// engine-side logic lives there, not here.
//
// Grounded on the teacher's internal/cli package for its root-command/
// options/output-formatter shape, and on the original implementation's
// apps/cast-cli/cast_cli/cli.py for the command set itself (install,
// list, init, uninstall, hsync, doctor/report — renamed sync/status here
// to name commands by what they do).
package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Format string // "text" | "json"
}

var validFormats = []string{"text", "json"}

// NewRootCommand builds the cast root command with every subcommand wired.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cast",
		Short: "Cast Sync - synchronize Markdown vaults across local peers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid --format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(
		newInitCommand(opts),
		newInstallCommand(opts),
		newListCommand(opts),
		newUninstallCommand(opts),
		newSyncCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
