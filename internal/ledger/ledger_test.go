package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/metrics"
	"verum/internal/seal"
)

var masterKey = []byte("0123456789abcdef0123456789abcdef")

func openLedger(t *testing.T, path string, opts ...Option) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), path, masterKey, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func sealFor(t *testing.T, caseLabel, content string) *seal.Seal {
	t.Helper()
	s, err := seal.New().Seal([]byte(content), seal.Metadata{
		CaseLabel: caseLabel,
		Device:    seal.Device{Manufacturer: "Acme", Model: "R1", OSVersion: "1"},
		KV:        map[string]string{"exhibit": content},
	})
	require.NoError(t, err)
	return s
}

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	l := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"), WithClock(func() time.Time { return fixed }))

	s := sealFor(t, "CASE-1", "photo")
	rec, err := l.Append(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, "CASE-1", rec.CaseLabel)
	assert.Equal(t, s.ContentHash, rec.ContentHash)
	assert.Equal(t, string(bytes.Repeat([]byte("0"), 64)), rec.PreviousHash)

	got, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RecordHash, got.RecordHash)
	assert.True(t, got.RecordedAt.Equal(fixed))
	assert.Equal(t, s.CombinedSignature, got.Seal.CombinedSignature)
	assert.True(t, seal.Verify(got.Seal, []byte("photo"), map[string]string{"exhibit": "photo"}).OverallValid)
}

func TestGetMissing(t *testing.T) {
	l := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"))
	_, err := l.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendNilSeal(t *testing.T) {
	l := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"))
	_, err := l.Append(context.Background(), nil)
	assert.ErrorIs(t, err, seal.ErrNilSeal)
}

func TestChainLinksAndLookups(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"))

	first, err := l.Append(ctx, sealFor(t, "CASE-A", "one"))
	require.NoError(t, err)
	second, err := l.Append(ctx, sealFor(t, "CASE-B", "two"))
	require.NoError(t, err)
	third, err := l.Append(ctx, sealFor(t, "CASE-A", "one"))
	require.NoError(t, err)

	assert.Equal(t, first.RecordHash, second.PreviousHash)
	assert.Equal(t, second.RecordHash, third.PreviousHash)

	caseA, err := l.ListByCase(ctx, "CASE-A")
	require.NoError(t, err)
	require.Len(t, caseA, 2)
	assert.Equal(t, first.ID, caseA[0].ID)
	assert.Equal(t, third.ID, caseA[1].ID)

	byHash, err := l.FindByContentHash(ctx, seal.ContentHash([]byte("one")))
	require.NoError(t, err)
	assert.Len(t, byHash, 2)

	none, err := l.ListByCase(ctx, "CASE-Z")
	require.NoError(t, err)
	assert.Empty(t, none)

	st, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Records)
	assert.Equal(t, int64(2), st.Cases)
	assert.Equal(t, third.RecordHash, st.ChainHash)
	assert.True(t, st.IntegrityOK)
}

func TestReopenVerifies(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(ctx, path, masterKey)
	require.NoError(t, err)
	_, err = l.Append(ctx, sealFor(t, "CASE-1", "a"))
	require.NoError(t, err)
	last, err := l.Append(ctx, sealFor(t, "CASE-1", "b"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened := openLedger(t, path)
	assert.True(t, reopened.IntegrityOK())

	next, err := reopened.Append(ctx, sealFor(t, "CASE-1", "c"))
	require.NoError(t, err)
	assert.Equal(t, last.RecordHash, next.PreviousHash)

	v, err := reopened.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Records)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTamperingIsDetected(t *testing.T) {
	tests := map[string]string{
		"case label rewritten": `UPDATE seals SET case_label = 'OTHER' WHERE seq = 1`,
		"record deleted":       `DELETE FROM seals WHERE seq = 2`,
		"hmac replaced":        `UPDATE seals SET hmac = X'00' WHERE seq = 2`,
		"integrity reset":      `UPDATE integrity SET record_count = 1`,
	}
	for name, stmt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "ledger.db")
			l := openLedger(t, path)
			for _, c := range []string{"x", "y", "z"} {
				_, err := l.Append(ctx, sealFor(t, "CASE-1", c))
				require.NoError(t, err)
			}

			raw, err := sql.Open("sqlite3", path)
			require.NoError(t, err)
			_, err = raw.Exec(stmt)
			require.NoError(t, err)
			require.NoError(t, raw.Close())

			_, err = l.Verify(ctx)
			assert.ErrorIs(t, err, ErrIntegrity)
			assert.False(t, l.IntegrityOK())

			_, err = l.Append(ctx, sealFor(t, "CASE-1", "w"))
			assert.ErrorIs(t, err, ErrIntegrityCompromise)
		})
	}
}

func TestWrongMasterKeyFailsVerification(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l := openLedger(t, path)
	_, err := l.Append(ctx, sealFor(t, "CASE-1", "a"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	other, err := Open(ctx, path, []byte("ffffffffffffffffffffffffffffffff"))
	require.ErrorIs(t, err, ErrIntegrity)
	require.NotNil(t, other)
	defer other.Close()
	assert.False(t, other.IntegrityOK())

	recs, err := other.ListByCase(ctx, "CASE-1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestWeakMasterKeyRejected(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), []byte("short"))
	assert.Error(t, err)
}

func TestLedgerMetrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	l := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"), WithMetrics(m))

	_, err := l.Append(ctx, sealFor(t, "CASE-1", "a"))
	require.NoError(t, err)
	_, err = l.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("append", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerRecords))
}
