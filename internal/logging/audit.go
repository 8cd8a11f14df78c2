package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditEventType identifies a chain-of-custody event.
type AuditEventType string

// Audit event types.
const (
	AuditEventAnalysis     AuditEventType = "analysis"
	AuditEventSeal         AuditEventType = "seal"
	AuditEventVerification AuditEventType = "verification"
	AuditEventLedger       AuditEventType = "ledger"
	AuditEventConfigChange AuditEventType = "config_change"
	AuditEventStartup      AuditEventType = "startup"
	AuditEventShutdown     AuditEventType = "shutdown"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AuditEvent is one line of the custody trail.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	Component   string         `json:"component"`
	Action      string         `json:"action"`
	Result      string         `json:"result"`
	CaseLabel   string         `json:"case_label,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// AuditConfig holds configuration for the audit logger.
type AuditConfig struct {
	FilePath   string
	MaxSize    int64
	MaxBackups int
	Compress   bool
	Component  string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		FilePath:   DefaultLogPath("custody.log"),
		MaxSize:    50,
		MaxBackups: 10,
		Compress:   true,
		Component:  "verum",
	}
}

// AuditLogger writes custody events as JSON lines. It never redacts:
// events carry hashes and case labels only, never key material.
type AuditLogger struct {
	component string
	w         io.Writer
	rotator   *FileRotator
	now       func() time.Time
	mu        sync.Mutex
}

// NewAuditLogger creates an AuditLogger backed by a rotating file.
func NewAuditLogger(cfg *AuditConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}
	a := NewAuditWriter(rotator, cfg.Component)
	a.rotator = rotator
	return a, nil
}

// NewAuditWriter creates an AuditLogger writing to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	if component == "" {
		component = "verum"
	}
	return &AuditLogger{component: component, w: w, now: time.Now}
}

// Log writes an audit event. A nil AuditLogger discards events.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// LogAnalysis records a completed analysis run.
func (a *AuditLogger) LogAnalysis(ctx context.Context, runID, likelihood string, score float64, media []string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventAnalysis,
		Action:    "evidence_analyzed",
		Details: map[string]any{
			"run_id":        runID,
			"likelihood":    likelihood,
			"overall_score": score,
			"media":         media,
		},
	})
}

// LogSeal records a seal creation attempt.
func (a *AuditLogger) LogSeal(ctx context.Context, caseLabel, contentHash string, err error) error {
	ev := AuditEvent{
		EventType:   AuditEventSeal,
		Action:      "seal_created",
		Result:      result(err == nil),
		CaseLabel:   caseLabel,
		ContentHash: contentHash,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return a.Log(ctx, ev)
}

// LogVerification records a seal verification and which layers held.
func (a *AuditLogger) LogVerification(ctx context.Context, caseLabel, contentHash string, content, metadata, signature bool) error {
	return a.Log(ctx, AuditEvent{
		EventType:   AuditEventVerification,
		Action:      "seal_verified",
		Result:      result(content && metadata && signature),
		CaseLabel:   caseLabel,
		ContentHash: contentHash,
		Details: map[string]any{
			"content_intact":   content,
			"metadata_intact":  metadata,
			"signature_intact": signature,
		},
	})
}

// LogLedger records a ledger operation.
func (a *AuditLogger) LogLedger(ctx context.Context, operation, recordID string, err error) error {
	ev := AuditEvent{
		EventType: AuditEventLedger,
		Action:    operation,
		Result:    result(err == nil),
		Details:   map[string]any{"record_id": recordID},
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return a.Log(ctx, ev)
}

// LogConfigChange records a configuration reload.
func (a *AuditLogger) LogConfigChange(ctx context.Context, path string, err error) error {
	ev := AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_reloaded",
		Result:    result(err == nil),
		Details:   map[string]any{"path": path},
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return a.Log(ctx, ev)
}

// LogStartup records a daemon start.
func (a *AuditLogger) LogStartup(ctx context.Context, version, addr string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStartup,
		Action:    "daemon_started",
		Details:   map[string]any{"version": version, "addr": addr},
	})
}

// LogShutdown records a daemon stop.
func (a *AuditLogger) LogShutdown(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "daemon_stopped",
		Details:   map[string]any{"reason": reason},
	})
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.rotator == nil {
		return nil
	}
	return a.rotator.Close()
}
