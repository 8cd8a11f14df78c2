package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		check    Check
		want     Status
	}{
		{"all healthy", true, healthy, StatusHealthy},
		{"critical failure", true, PingCheck("db", func(context.Context) error { return errors.New("down") }), StatusUnhealthy},
		{"optional failure", false, PingCheck("db", func(context.Context) error { return errors.New("down") }), StatusDegraded},
		{"panic", true, func(context.Context) CheckResult { panic("boom") }, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			c.RegisterFunc("base", true, healthy)
			c.RegisterFunc("probe", tt.critical, tt.check)
			c.Check(context.Background())
			assert.Equal(t, tt.want, c.OverallStatus())
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker("test")
	c.RegisterFunc("ledger", true, healthy)
	assert.Equal(t, StatusUnknown, c.OverallStatus())
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker("test")
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
}

func TestReport(t *testing.T) {
	c := NewChecker("1.2.3")
	c.RegisterFunc("memory", false, MemoryCheck(0))
	c.RegisterFunc("ledger", true, PingCheck("ledger", func(context.Context) error { return nil }))

	r := c.Report(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "1.2.3", r.Version)
	assert.Len(t, r.Components, 2)
	assert.Equal(t, []string{"ledger", "memory"}, c.Names())
}

func TestSecretFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.key")

	assert.Equal(t, StatusUnhealthy, SecretFileCheck(path)(context.Background()).Status)

	require.NoError(t, os.WriteFile(path, []byte("k"), 0o600))
	assert.Equal(t, StatusHealthy, SecretFileCheck(path)(context.Background()).Status)

	if runtime.GOOS != "windows" {
		require.NoError(t, os.Chmod(path, 0o644))
		assert.Equal(t, StatusDegraded, SecretFileCheck(path)(context.Background()).Status)
	}
}

func TestMemoryCheckLimit(t *testing.T) {
	r := MemoryCheck(1)(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Contains(t, r.Details, "heap_alloc_bytes")
}
