package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/config"
	"verum/internal/security"
)

// setup isolates the data directory and writes a config listening on an
// ephemeral port with a custody log in the temp directory.
func setup(t *testing.T, mutate func(*config.Config)) (cfgPath, auditPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VERUM_DATA_DIR", filepath.Join(dir, "data"))

	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Logging.AuditPath = filepath.Join(dir, "custody.log")
	if mutate != nil {
		mutate(cfg)
	}
	cfgPath = filepath.Join(dir, "verumd.toml")
	require.NoError(t, config.Save(cfg, cfgPath))
	return cfgPath, cfg.Logging.AuditPath
}

func TestVersion(t *testing.T) {
	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stderr))
	assert.Equal(t, "verumd dev\n", stderr.String())
}

func TestStartAndStop(t *testing.T) {
	cfgPath, auditPath := setup(t, func(c *config.Config) { c.Ledger.Enabled = false })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stderr bytes.Buffer
	require.NoError(t, run(ctx, []string{"-config", cfgPath}, &stderr))
	assert.Contains(t, stderr.String(), "verumd starting")

	audit, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"daemon_started"`)
	assert.Contains(t, string(audit), `"daemon_stopped"`)

	lock, err := security.AcquireLock(filepath.Join(config.DataDir(), "verumd.lock"))
	require.NoError(t, err, "lock should be released on exit")
	require.NoError(t, lock.Release())
}

func TestStartWithLedger(t *testing.T) {
	cfgPath, auditPath := setup(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", cfgPath}, &bytes.Buffer{}) }()

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(auditPath)
		return bytes.Contains(data, []byte(`"daemon_started"`))
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err := os.Stat(filepath.Join(config.DataDir(), "ledger.key"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(config.DataDir(), "ledger.db"))
	assert.NoError(t, err)
}

func TestSingleInstance(t *testing.T) {
	cfgPath, _ := setup(t, func(c *config.Config) { c.Ledger.Enabled = false })

	lock, err := security.AcquireLock(filepath.Join(config.DataDir(), "verumd.lock"))
	require.NoError(t, err)
	defer lock.Release()

	err = run(context.Background(), []string{"-config", cfgPath}, &bytes.Buffer{})
	assert.ErrorIs(t, err, security.ErrLocked)
}

func TestInvalidConfig(t *testing.T) {
	cfgPath, _ := setup(t, nil)
	require.NoError(t, os.WriteFile(cfgPath, []byte("[fusion]\nlow_score = 0.9\nhigh_score = 0.1\n"), 0o600))

	err := run(context.Background(), []string{"-config", cfgPath}, &bytes.Buffer{})
	assert.Error(t, err)
}
