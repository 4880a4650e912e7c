package cliapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/cascade"
	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/vault"
)

func newSyncCommand(root *RootOptions) *cobra.Command {
	var file string
	var peers []string
	var dryRun, nonInteractive, noCascade, debug bool

	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"hsync"},
		Short:   "Run horizontal sync across declared peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			castRoot, err := currentRoot("")
			if err != nil {
				return err
			}
			if _, err := configio.Read(castRoot); err != nil {
				return newCmdError(ExitCommandError, "sync failed", err)
			}

			level := slog.LevelWarn
			if debug {
				level = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			var prompter = newTermPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			opts := cascade.Options{
				PeerFilter:     peers,
				FileFilter:     file,
				DryRun:         dryRun,
				NonInteractive: nonInteractive,
				Prompter:       prompter,
				Cascade:        !noCascade,
				Logger:         logger,
			}

			fmt.Fprintf(cmd.OutOrStdout(), "syncing vault at %s\n", castRoot)
			code, err := cascade.Run(context.Background(), castRoot, opts)
			if err != nil {
				var verr *vault.Error
				if errors.As(err, &verr) {
					return newCmdError(verr.Code.ExitCode(), "unable to start sync", verr)
				}
				return newCmdError(ExitCommandError, "sync failed", err)
			}

			switch code {
			case 0:
				fmt.Fprintln(cmd.OutOrStdout(), "sync completed successfully")
			case 1:
				fmt.Fprintln(cmd.OutOrStdout(), "sync completed with warnings")
			case 3:
				fmt.Fprintln(cmd.OutOrStdout(), "sync completed with unresolved conflicts")
			}
			if code != 0 {
				return newCmdError(code, "sync finished with a non-zero exit code", nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "sync only this file (cast-id or path)")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "sync only with these peers")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without doing it")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "don't prompt for conflicts")
	cmd.Flags().BoolVar(&noCascade, "no-cascade", false, "don't recurse into peers-of-peers")
	cmd.Flags().BoolVar(&debug, "debug", false, "log each decision, including no-ops")
	return cmd
}
