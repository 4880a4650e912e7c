package cliapp

import (
	"os"
	"path/filepath"
)

// currentRoot finds the nearest ancestor of the working directory (or
// start, if given) that contains a .cast directory, matching the
// original CLI's get_current_root(): check cwd first, then walk up.
func currentRoot(start string) (string, error) {
	dir := start
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".cast")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", newCmdError(ExitCommandError, "not in a cast root directory (no .cast/ found)", nil)
		}
		dir = parent
	}
}
