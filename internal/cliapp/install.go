package cliapp

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/registry"
)

func newInstallCommand(root *RootOptions) *cobra.Command {
	var rename string

	cmd := &cobra.Command{
		Use:   "install [path]",
		Short: "Register an existing cast root in the machine registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			absRoot, err := filepath.Abs(path)
			if err != nil {
				return newCmdError(ExitCommandError, "resolve path", err)
			}

			if rename != "" {
				cfg, err := configio.Read(absRoot)
				if err != nil {
					return newCmdError(ExitCommandError, "install failed", err)
				}
				cfg.CastName = configio.SanitizeName(rename)
				if err := configio.Write(absRoot, cfg); err != nil {
					return newCmdError(ExitCommandError, "rename before install", err)
				}
			}

			entry, err := registry.Register(absRoot)
			if err != nil {
				return newCmdError(ExitCommandError, "install failed", err)
			}
			return writeResult(cmd.OutOrStdout(), root.Format, entry,
				fmt.Sprintf("installed cast: %s\n  root: %s\n  vault: %s", entry.Name, entry.Root, entry.VaultPath()))
		},
	}

	cmd.Flags().StringVarP(&rename, "name", "n", "", "override the cast name before registering")
	return cmd
}
