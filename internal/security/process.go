package security

import (
	"fmt"
	"os"
)

// ProcessState is the security-relevant state of the running process.
type ProcessState struct {
	PID              int      `json:"pid"`
	IsRoot           bool     `json:"is_root"`
	Umask            int      `json:"umask"`
	CoreDumpsEnabled bool     `json:"core_dumps_enabled"`
	Warnings         []string `json:"warnings,omitempty"`
}

// CaptureProcessState inspects the current process.
func CaptureProcessState() *ProcessState {
	state := &ProcessState{
		PID:              os.Getpid(),
		IsRoot:           os.Geteuid() == 0,
		Umask:            currentUmask(),
		CoreDumpsEnabled: coreDumpsEnabled(),
	}

	if state.IsRoot {
		state.Warnings = append(state.Warnings, "running as root; consider a dedicated service account")
	}
	if state.Umask&0o077 != 0o077 {
		state.Warnings = append(state.Warnings, fmt.Sprintf("umask %04o lets group/other read new files", state.Umask))
	}
	if state.CoreDumpsEnabled {
		state.Warnings = append(state.Warnings, "core dumps enabled; the ledger key could reach disk")
	}
	return state
}

// Harden restricts the umask to owner-only and disables core dumps so the
// ledger key and evidence buffers never land in a crash dump. It returns
// the resulting state.
func Harden() (*ProcessState, error) {
	setUmask(0o077)
	if err := disableCoreDumps(); err != nil {
		return CaptureProcessState(), fmt.Errorf("disable core dumps: %w", err)
	}
	return CaptureProcessState(), nil
}
