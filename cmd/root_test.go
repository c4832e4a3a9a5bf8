package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/config"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

func quietRuntime(t *testing.T) {
	t.Helper()
	prev := newRuntime
	newRuntime = func(path string) (*runtime, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return &runtime{cfg: cfg, logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newRuntime = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  primaries:
    - name: p0
      driver: local
      path: ` + filepath.Join(dir, "p0.json") + `
    - name: p1
      driver: local
      path: ` + filepath.Join(dir, "p1.json") + `
  backup:
    name: bk
    driver: local
    path: ` + filepath.Join(dir, "backup.json") + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

// These tests swap a package variable, so they do not run in parallel.

func TestDBStatusDefaultTopology(t *testing.T) {
	quietRuntime(t)

	out, err := execute(t, "db", "status")
	require.NoError(t, err)
	require.Contains(t, out, "active:    primary-0 (index 0)")
	require.Contains(t, out, "backup:    (none)")
}

func TestDBSwitchNeedsBackup(t *testing.T) {
	quietRuntime(t)

	_, err := execute(t, "db", "switch")
	require.ErrorIs(t, err, schedule.ErrInsufficientTopology)

	_, err = execute(t, "db", "backup")
	require.ErrorIs(t, err, schedule.ErrInsufficientTopology)
}

func TestDBSwitchPersistsAcrossRuns(t *testing.T) {
	quietRuntime(t)
	cfgPath := writeConfig(t, t.TempDir())

	out, err := execute(t, "--config", cfgPath, "db", "backup")
	require.NoError(t, err)
	require.Contains(t, out, "backup written from p0")

	out, err = execute(t, "--config", cfgPath, "db", "switch")
	require.NoError(t, err)
	require.Contains(t, out, "switched p0 -> p1")

	// A fresh process reconciles the active primary from the backup.
	out, err = execute(t, "--config", cfgPath, "db", "status")
	require.NoError(t, err)
	require.Contains(t, out, "active:    p1 (index 1)")
}

func TestUnknownConfigFails(t *testing.T) {
	quietRuntime(t)

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "db", "status")
	require.Error(t, err)
}
