// Package health aggregates component checks for the verumd health
// endpoint: the ledger database, its key file and process memory.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check performs one health check.
type Check func(ctx context.Context) CheckResult

// Component is a named check. A failing critical component makes the
// overall status unhealthy; a failing optional one only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker runs registered checks and remembers their last results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	version    string
}

// NewChecker creates a checker reporting version.
func NewChecker(version string) *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
		version:    version,
	}
}

// Register adds or replaces a component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a check function with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Check runs every registered check concurrently.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, comp := range components {
		comp := comp
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := run(ctx, comp)
			mu.Lock()
			results[comp.Name] = r
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check with its timeout, converting a panic or an
// overrun into an unhealthy result.
func run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: checkCtx.Err().Error()}
	}
	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// OverallStatus aggregates the last results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown, hasDegraded := false, false
	for name, result := range c.results {
		comp := c.components[name]
		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	switch {
	case hasUnknown:
		return StatusUnknown
	case hasDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs every check and summarizes them.
func (c *Checker) Report(ctx context.Context) Response {
	components := c.Check(ctx)
	return Response{
		Status:     c.OverallStatus(),
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

// Names returns the registered component names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PingCheck reports a dependency reachable when ping succeeds.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: what + " unreachable", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " ok"}
	}
}

// SecretFileCheck verifies that path exists and is not readable by group
// or other.
func SecretFileCheck(path string) Check {
	return func(context.Context) CheckResult {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return CheckResult{Status: StatusUnhealthy, Message: "file missing", Details: map[string]any{"path": path}}
		}
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "stat failed", Error: err.Error()}
		}
		details := map[string]any{"path": path, "mode": fmt.Sprintf("%04o", info.Mode().Perm())}
		if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
			return CheckResult{Status: StatusDegraded, Message: "file readable by group or other", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "file ok", Details: details}
	}
}

// MemoryCheck degrades once the Go heap exceeds maxHeapBytes.
func MemoryCheck(maxHeapBytes uint64) Check {
	return func(context.Context) CheckResult {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		details := map[string]any{
			"heap_alloc_bytes": ms.HeapAlloc,
			"max_heap_bytes":   maxHeapBytes,
			"goroutines":       runtime.NumGoroutine(),
		}
		if maxHeapBytes > 0 && ms.HeapAlloc > maxHeapBytes {
			return CheckResult{Status: StatusDegraded, Message: "heap above limit", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "memory ok", Details: details}
	}
}
