package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		back, err := ParseLevel(LevelString(lvl))
		if err != nil || back != lvl {
			t.Errorf("LevelString(%v) does not round trip: %q", lvl, LevelString(lvl))
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected JSON format")
	}
	if ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Error("expected text format")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Component != "verum" {
		t.Errorf("component = %q", cfg.Component)
	}
	if !strings.Contains(cfg.FilePath, "verum") {
		t.Errorf("file path %q is not under a verum directory", cfg.FilePath)
	}
	if cfg.Level != LevelInfo {
		t.Errorf("level = %v", cfg.Level)
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.Format = format
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l, &buf
}

func TestJSONFormatCarriesComponentAndRequestID(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)

	l.WithRequestID("req-42").Info("sealed", "content_hash", "abc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["component"] != "verum" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["content_hash"] != "abc" {
		t.Errorf("content_hash = %v", entry["content_hash"])
	}
}

func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)

	l.Info("seal", "salt", "00ff", "ledger_key", "secret-bytes", "case", "C-1")

	out := buf.String()
	if strings.Contains(out, "00ff") || strings.Contains(out, "secret-bytes") {
		t.Errorf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "C-1") {
		t.Errorf("non-sensitive value missing: %s", out)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := map[string]bool{
		"salt":          true,
		"hmac_key":      true,
		"api_token":     true,
		"Password":      true,
		"content_hash":  false,
		"case_label":    false,
		"overall_score": false,
	}
	for key, want := range tests {
		if got := shouldRedact(key); got != want {
			t.Errorf("shouldRedact(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestWithComponentAndRunID(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)

	l.WithComponent("engine").WithRunID("run-7").Warn("analyzer abandoned")

	out := buf.String()
	if !strings.Contains(out, "component=engine") || !strings.Contains(out, "run_id=run-7") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	l, _ := newBufferLogger(t, FormatText)
	child := l.WithComponent("api")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := child.NewRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "verum-") {
			t.Fatalf("request id %q lacks component prefix", id)
		}
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
	//nolint:staticcheck // nil context is handled explicitly
	if got := RequestIDFromContext(nil); got != "" {
		t.Errorf("nil context returned %q", got)
	}

	l, buf := newBufferLogger(t, FormatText)
	l.WithContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("context request id missing: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.Level = LevelWarn
	l, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "verum.log")

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	l.Info("written to disk")
	if err := l.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to disk") {
		t.Errorf("log file content: %s", data)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 2; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files := rotator.Files()
	if len(files) != 2 {
		t.Fatalf("expected active file plus one backup, got %v", files)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("active file size = %d", info.Size())
	}
}

func TestFileRotatorPrunesBackups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer rotator.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		rotator.now = func() time.Time { return tick }
		if _, err := rotator.Write([]byte("line\n")); err != nil {
			t.Fatal(err)
		}
		if err := rotator.Rotate(); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(rotator.Files()); got != 3 {
		t.Errorf("expected 1 active + 2 backups, got %d: %v", got, rotator.Files())
	}
}

func TestFileRotatorCompressesBackups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 3, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rotator.Write([]byte("compress me\n")); err != nil {
		t.Fatal(err)
	}
	if err := rotator.Rotate(); err != nil {
		t.Fatal(err)
	}
	if err := rotator.Close(); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(logPath), "test-*.log.gz"))
	if len(matches) != 1 {
		t.Errorf("expected one gzip backup, got %v", matches)
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditWriter(&buf, "")
	a.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	ctx := ContextWithRequestID(context.Background(), "req-1")

	if err := a.LogSeal(ctx, "CASE-1", "abcd", nil); err != nil {
		t.Fatal(err)
	}
	if err := a.LogVerification(ctx, "CASE-1", "abcd", true, false, false); err != nil {
		t.Fatal(err)
	}
	if err := a.LogLedger(ctx, "insert", "id-1", errors.New("disk full")); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 events, got %d", len(lines))
	}

	var events []AuditEvent
	for _, line := range lines {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if events[0].EventType != AuditEventSeal || events[0].Result != ResultSuccess || events[0].Component != "verum" {
		t.Errorf("seal event = %+v", events[0])
	}
	if events[0].RequestID != "req-1" {
		t.Errorf("request id = %q", events[0].RequestID)
	}
	if events[1].Result != ResultFailure || events[1].Details["metadata_intact"] != false {
		t.Errorf("verification event = %+v", events[1])
	}
	if events[2].Error != "disk full" {
		t.Errorf("ledger event = %+v", events[2])
	}
}

func TestNilAuditLoggerDiscards(t *testing.T) {
	var a *AuditLogger
	if err := a.LogShutdown(context.Background(), "signal"); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("nil close returned %v", err)
	}
}

func TestFileAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.log")
	cfg := DefaultAuditConfig()
	cfg.FilePath = path

	a, err := NewAuditLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.LogStartup(context.Background(), "1.0.0", ":8080"); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"event_type":"startup"`) {
		t.Errorf("custody log = %s", data)
	}
}
