// Package sandboxtest builds disposable multi-vault fixtures for exercising
// the sync engine end-to-end: a private registry under a temp CAST_HOME, N
// initialized+installed vault roots, and helpers to write notes, run a
// cascade, and read back results.
//
// Grounded on the original implementation's scripts/make_sandbox.py (the
// init/install/write-note/hsync shape a manual sandbox walks through) and
// styled after the teacher's internal/harness package for the "fixture
// object with helper methods, one per test" shape.
package sandboxtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/castsync/cast/internal/cascade"
	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/notefile"
	"github.com/castsync/cast/internal/registry"
	"github.com/castsync/cast/internal/vault"
)

// Sandbox is a disposable set of vault roots sharing one private registry.
type Sandbox struct {
	t      *testing.T
	Dir    string // temp root containing every vault and the registry home
	vaults map[string]string // cast-name -> root
}

// New creates a sandbox rooted at a fresh t.TempDir() and points CAST_HOME
// at a private registry home inside it for the test's duration, so runs
// never touch the real user registry.
func New(t *testing.T) *Sandbox {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CAST_HOME", filepath.Join(dir, ".cast-home"))
	return &Sandbox{t: t, Dir: dir, vaults: map[string]string{}}
}

// CreateVault initializes a new vault root named name and installs it into
// the sandbox's private registry. Peers are declared per-note (cast-vaults
// is a front-matter field, not a vault-level one) via WriteNote. Returns
// the vault's root path.
func (s *Sandbox) CreateVault(name string) string {
	s.t.Helper()
	root := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		s.t.Fatalf("sandbox: create vault root %s: %v", name, err)
	}
	cfg := vault.Config{
		CastVersion:  vault.CurrentCastVersion,
		CastID:       uuid.NewString(),
		CastName:     name,
		CastLocation: configio.DefaultLocation,
	}
	if err := configio.Write(root, cfg); err != nil {
		s.t.Fatalf("sandbox: write config for %s: %v", name, err)
	}
	if _, err := registry.Register(root); err != nil {
		s.t.Fatalf("sandbox: register %s: %v", name, err)
	}
	s.vaults[name] = root
	return root
}

// Root returns the previously created vault root for name.
func (s *Sandbox) Root(name string) string {
	s.t.Helper()
	root, ok := s.vaults[name]
	if !ok {
		s.t.Fatalf("sandbox: no vault named %q", name)
	}
	return root
}

// VaultDir returns the content directory (root/<cast-location>) for name.
func (s *Sandbox) VaultDir(name string) string {
	s.t.Helper()
	root := s.Root(name)
	cfg, err := configio.Read(root)
	if err != nil {
		s.t.Fatalf("sandbox: read config for %s: %v", name, err)
	}
	return configio.VaultPath(root, cfg)
}

// Note describes one note to write via WriteNote.
type Note struct {
	CastID string
	Peers  []string // e.g. "vaultB (live)" or "vaultC (watch)"; entries without a mode are ignored
	Title  string
	Body   string
}

// WriteNote writes relPath under vaultName's content directory with a
// front matter block declaring CastID and Peers, returning the absolute
// path written.
func (s *Sandbox) WriteNote(vaultName, relPath string, n Note) string {
	s.t.Helper()
	path := filepath.Join(s.VaultDir(vaultName), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.t.Fatalf("sandbox: create note dir: %v", err)
	}
	header := notefile.NewHeader()
	header.Set("cast-id", n.CastID)
	if len(n.Peers) > 0 {
		header.SetSequence("cast-vaults", n.Peers)
	}
	header.SetInt("cast-version", vault.CurrentCastVersion)
	if n.Title != "" {
		header.Set("title", n.Title)
	}
	if err := notefile.Write(path, header, n.Body, true); err != nil {
		s.t.Fatalf("sandbox: write note %s: %v", relPath, err)
	}
	return path
}

// ReadNote returns the raw body of the note at vaultName's relPath, and
// whether it exists at all.
func (s *Sandbox) ReadNote(vaultName, relPath string) (body string, exists bool) {
	s.t.Helper()
	path := filepath.Join(s.VaultDir(vaultName), filepath.FromSlash(relPath))
	_, b, _, err := notefile.Read(path)
	if err != nil {
		return "", false
	}
	return b, true
}

// Exists reports whether vaultName has a file at relPath.
func (s *Sandbox) Exists(vaultName, relPath string) bool {
	s.t.Helper()
	_, ok := s.ReadNote(vaultName, relPath)
	return ok
}

// RunSync runs a non-interactive, cascading sync starting from vaultName
// and returns the aggregated exit code.
func (s *Sandbox) RunSync(vaultName string) int {
	s.t.Helper()
	root := s.Root(vaultName)
	code, err := cascade.Run(context.Background(), root, cascade.Options{
		NonInteractive: true,
		Cascade:        true,
	})
	if err != nil {
		s.t.Fatalf("sandbox: sync %s: %v", vaultName, err)
	}
	return code
}

// RunSyncOnce runs a single-root (non-cascading) sync, for tests that want
// to assert on one horizontal pass in isolation.
func (s *Sandbox) RunSyncOnce(vaultName string) int {
	s.t.Helper()
	root := s.Root(vaultName)
	code, err := cascade.Run(context.Background(), root, cascade.Options{
		NonInteractive: true,
		Cascade:        false,
	})
	if err != nil {
		s.t.Fatalf("sandbox: sync-once %s: %v", vaultName, err)
	}
	return code
}
