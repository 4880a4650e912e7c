package cliapp

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/registry"
	"github.com/castsync/cast/internal/vault"
)

func newInitCommand(root *RootOptions) *cobra.Command {
	var name, location string
	var installAfter bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new cast in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return newCmdError(ExitCommandError, "resolve working directory", err)
			}
			if _, err := os.Stat(configio.ControlDir(cwd)); err == nil {
				return newCmdError(ExitWarnings, "cast already initialized in this directory", nil)
			}
			if name == "" {
				return newCmdError(ExitCommandError, "--name is required", nil)
			}
			name = configio.SanitizeName(name)

			cfg := vault.Config{
				CastVersion:  vault.CurrentCastVersion,
				CastID:       uuid.NewString(),
				CastName:     name,
				CastLocation: location,
			}
			if err := configio.Write(cwd, cfg); err != nil {
				return newCmdError(ExitCommandError, "write config.yaml", err)
			}
			if err := os.MkdirAll(filepath.Join(cwd, location), 0o755); err != nil {
				return newCmdError(ExitCommandError, "create vault directory", err)
			}

			var installNote string
			if installAfter {
				entry, err := registry.Register(cwd)
				if err != nil {
					installNote = fmt.Sprintf("init succeeded, but auto-install failed: %v", err)
				} else {
					installNote = fmt.Sprintf("installed cast: %s (root: %s)", entry.Name, entry.Root)
				}
			}

			return writeResult(cmd.OutOrStdout(), root.Format, map[string]any{
				"cast_name": name,
				"root":      cwd,
				"vault":     filepath.Join(cwd, location),
				"install":   installNote,
			}, fmt.Sprintf("cast initialized: %s\n  root: %s\n  vault: %s\n%s", name, cwd, filepath.Join(cwd, location), installNote))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name for this cast (required)")
	cmd.Flags().StringVar(&location, "location", configio.DefaultLocation, "vault location relative to root")
	cmd.Flags().BoolVar(&installAfter, "install", true, "also register in the machine registry")
	return cmd
}
