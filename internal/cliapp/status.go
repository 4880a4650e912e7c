package cliapp

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/registry"
	"github.com/castsync/cast/internal/vaultindex"
)

// statusReport is the combined config/registry/peer health check the
// original implementation splits across `doctor` (issues/warnings) and
// `report` (file/peer listing); merged here into one command that names
// what it checks rather than two commands named after a metaphor.
type statusReport struct {
	Root     string   `json:"root"`
	CastName string   `json:"cast_name,omitempty"`
	CastID   string   `json:"cast_id,omitempty"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	FileCount int     `json:"file_count"`
	Peers    []string `json:"peers,omitempty"`
}

func newStatusCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check cast configuration and report peers/issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			castRoot, err := currentRoot("")
			if err != nil {
				return err
			}
			rep := statusReport{Root: castRoot}

			cfg, cfgErr := configio.Read(castRoot)
			if cfgErr != nil {
				rep.Issues = append(rep.Issues, cfgErr.Error())
			} else {
				rep.CastName = cfg.CastName
				rep.CastID = cfg.CastID

				vaultPath := configio.VaultPath(castRoot, cfg)
				if _, err := os.Stat(vaultPath); err != nil {
					rep.Issues = append(rep.Issues, fmt.Sprintf("vault not found at %s", vaultPath))
				} else {
					idx, err := vaultindex.Scan(vaultPath, vaultindex.Options{Fixup: false}, nil)
					if err != nil {
						rep.Warnings = append(rep.Warnings, fmt.Sprintf("could not scan vault: %v", err))
					} else {
						rep.FileCount = len(idx.ByID)
						peers := idx.AllPeers()
						sort.Strings(peers)
						rep.Peers = peers
						for _, peer := range peers {
							if _, ok, err := registry.ResolveByName(peer); err != nil {
								rep.Warnings = append(rep.Warnings, fmt.Sprintf("could not check peer %q: %v", peer, err))
							} else if !ok {
								rep.Warnings = append(rep.Warnings, fmt.Sprintf("peer %q not found in machine registry; install it with 'cast install .' in its root", peer))
							}
						}
					}
				}

				if entries, err := registry.List(); err != nil {
					rep.Warnings = append(rep.Warnings, fmt.Sprintf("could not read machine registry: %v", err))
				} else {
					installed := false
					for _, e := range entries {
						if e.CastID == cfg.CastID && e.Root == castRoot {
							installed = true
							break
						}
					}
					if !installed {
						rep.Warnings = append(rep.Warnings, "this cast is not installed in the machine registry; run 'cast install .'")
					}
				}
			}

			if root.Format == "json" {
				if err := writeResult(cmd.OutOrStdout(), root.Format, rep, ""); err != nil {
					return newCmdError(ExitCommandError, "encode status", err)
				}
			} else {
				printStatusText(cmd, rep)
			}

			if len(rep.Issues) > 0 {
				return newCmdError(ExitWarnings, "configuration issues found", nil)
			}
			return nil
		},
	}
}

func printStatusText(cmd *cobra.Command, rep statusReport) {
	out := cmd.OutOrStdout()
	if len(rep.Issues) == 0 && len(rep.Warnings) == 0 {
		fmt.Fprintln(out, "cast configuration looks good")
	}
	for _, issue := range rep.Issues {
		fmt.Fprintf(out, "[issue] %s\n", issue)
	}
	for _, warning := range rep.Warnings {
		fmt.Fprintf(out, "[warning] %s\n", warning)
	}
	if rep.CastName != "" {
		fmt.Fprintf(out, "cast: %s (%s)\n", rep.CastName, rep.CastID)
		fmt.Fprintf(out, "files: %d, peers: %v\n", rep.FileCount, rep.Peers)
	}
}
