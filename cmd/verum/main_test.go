package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/media"
	"verum/internal/seal"
)

type result struct {
	code           int
	stdout, stderr string
}

func verum(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// workspace isolates data and config directories and writes a default
// config file.
func workspace(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("VERUM_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	cfgPath = filepath.Join(dir, "verum.toml")

	r := verum(t, "config", "init", cfgPath)
	require.Equal(t, 0, r.code, r.stderr)
	return dir, cfgPath
}

func TestUsage(t *testing.T) {
	r := verum(t, "help")
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "COMMANDS:")

	assert.Equal(t, 2, verum(t).code)

	r = verum(t, "frobnicate")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "Unknown command: frobnicate")

	assert.Equal(t, 2, verum(t, "seal").code)
	assert.Equal(t, 2, verum(t, "verify", "only-one").code)
}

func TestConfigCommands(t *testing.T) {
	_, cfgPath := workspace(t)

	r := verum(t, "config", "init", cfgPath)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "already exists")
	assert.Equal(t, 0, verum(t, "config", "init", "-force", cfgPath).code)

	r = verum(t, "config", "validate", cfgPath)
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "is valid")

	require.NoError(t, os.WriteFile(cfgPath, []byte("[audio]\nhop_size = 4096\nframe_size = 1024\n"), 0o600))
	assert.Equal(t, 1, verum(t, "config", "validate", cfgPath).code)
	assert.Equal(t, 1, verum(t, "config", "validate", filepath.Join(t.TempDir(), "missing.toml")).code)

	r = verum(t, "config", "show")
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "fusion:")
}

func TestSealVerifyAndLedger(t *testing.T) {
	dir, cfgPath := workspace(t)
	evidence := filepath.Join(dir, "statement.txt")
	require.NoError(t, os.WriteFile(evidence, []byte("I saw the blue car at 10:15."), 0o600))
	sealPath := filepath.Join(dir, "statement.seal.json")

	r := verum(t, "-config", cfgPath, "seal", evidence,
		"-case", "CASE-2024-017", "-manufacturer", "Acme", "-model", "Recorder 9",
		"-meta", "officer=J. Doe", "-meta", "exhibit=A-3", "-o", sealPath)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Ledger record:")
	assert.Contains(t, r.stdout, "Case:      CASE-2024-017")
	assert.Contains(t, r.stderr, "Generated ledger key")

	f, err := os.Open(sealPath)
	require.NoError(t, err)
	s, err := seal.Read(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"officer": "J. Doe", "exhibit": "A-3"}, s.MetadataKV)

	r = verum(t, "-config", cfgPath, "verify", evidence, sealPath)
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Content:   intact")

	r = verum(t, "-config", cfgPath, "verify", evidence, sealPath, "-meta", "officer=J. Doe", "-meta", "exhibit=B-1")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "Metadata:  MODIFIED")

	r = verum(t, "footer", sealPath)
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, seal.Footer(s), r.stdout)

	require.NoError(t, os.WriteFile(evidence, []byte("I saw the red car at 10:15."), 0o600))
	r = verum(t, "-config", cfgPath, "verify", evidence, sealPath)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "Content:   MODIFIED")
	assert.Contains(t, r.stderr, "verification failed")

	r = verum(t, "-config", cfgPath, "ledger", "list", "-case", "CASE-2024-017")
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "CASE-2024-017")
	assert.Contains(t, r.stdout, s.ContentHash[:16])

	r = verum(t, "-config", cfgPath, "ledger", "find", s.ContentHash, "-json")
	require.Equal(t, 0, r.code, r.stderr)
	var found []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &found))
	assert.Len(t, found, 1)

	r = verum(t, "-config", cfgPath, "ledger", "stats")
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Records:    1")

	r = verum(t, "-config", cfgPath, "ledger", "verify")
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "1 records intact")

	assert.Equal(t, 1, verum(t, "-config", cfgPath, "ledger", "find", "abc").code)
	assert.Equal(t, 2, verum(t, "-config", cfgPath, "ledger", "list").code)
}

func TestSealWithoutLedger(t *testing.T) {
	dir, cfgPath := workspace(t)
	evidence := filepath.Join(dir, "photo.bin")
	require.NoError(t, os.WriteFile(evidence, []byte{0x01, 0x02}, 0o600))

	r := verum(t, "-config", cfgPath, "seal", "-no-ledger", evidence)
	require.Equal(t, 0, r.code, r.stderr)
	assert.NotContains(t, r.stdout, "Ledger record:")
	_, err := os.Stat(evidence + ".seal.json")
	assert.NoError(t, err)

	r = verum(t, "-config", cfgPath, "seal", evidence, "-meta", "novalue")
	assert.Equal(t, 2, r.code)
}

func TestAnalyzeDocument(t *testing.T) {
	dir, cfgPath := workspace(t)
	pdf := filepath.Join(dir, "statement.pdf")
	require.NoError(t, os.WriteFile(pdf,
		[]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"), 0o600))

	r := verum(t, "-config", cfgPath, "analyze", "-document", pdf, "-json")
	require.Equal(t, 0, r.code, r.stderr)

	var report struct {
		RunID string   `json:"run_id"`
		Media []string `json:"media"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"document"}, report.Media)

	r = verum(t, "-config", cfgPath, "analyze")
	require.Equal(t, 0, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(r.stdout, "Run "), r.stdout)

	r = verum(t, "-config", cfgPath, "analyze", "-image", filepath.Join(dir, "missing.jpg"))
	assert.Equal(t, 1, r.code)
}

func TestCompareSpeakers(t *testing.T) {
	dir, cfgPath := workspace(t)
	clip := filepath.Join(dir, "clip.wav")
	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = float64(i%80)/80 - 0.5
	}
	f, err := os.Create(clip)
	require.NoError(t, err)
	require.NoError(t, media.EncodeWAV(f, samples, 16000))
	require.NoError(t, f.Close())

	r := verum(t, "-config", cfgPath, "compare-speakers", clip, clip)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Similarity: 1.0000")
}
