package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/registry"
)

func newUninstallCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id|name|path>",
		Short: "Remove a cast from the machine registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := args[0]

			removed, ok, err := registry.Unregister(identifier, "", "")
			if err == nil && !ok {
				removed, ok, err = registry.Unregister("", identifier, "")
			}
			if err == nil && !ok {
				removed, ok, err = registry.Unregister("", "", identifier)
			}
			if err != nil {
				return newCmdError(ExitCommandError, "uninstall failed", err)
			}
			if !ok {
				return newCmdError(ExitCommandError, fmt.Sprintf("no installed cast matched %q", identifier), nil)
			}
			return writeResult(cmd.OutOrStdout(), root.Format, removed,
				fmt.Sprintf("uninstalled cast: %s (id=%s)\n  root: %s", removed.Name, removed.CastID, removed.Root))
		},
	}
}
