package cliapp

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/registry"
)

func newListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List casts installed in the machine registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := registry.List()
			if err != nil {
				return newCmdError(ExitCommandError, "list failed", err)
			}

			if root.Format == "json" {
				return writeResult(cmd.OutOrStdout(), root.Format, entries, "")
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no casts installed")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tROOT\tVAULT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.CastID, e.Root, e.VaultPath())
			}
			return w.Flush()
		},
	}
}
