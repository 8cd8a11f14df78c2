package engine

import (
	"context"
	"errors"
	"sync"

	"verum/internal/forensics"
)

// ErrAbandoned is returned by Await after the future was abandoned.
var ErrAbandoned = errors.New("engine: analysis abandoned")

// Future is the pending result of one medium analysis.
type Future struct {
	medium forensics.Medium
	done   chan struct{}

	mu        sync.Mutex
	result    forensics.MediumResult
	abandoned chan struct{}
	once      sync.Once
}

func newFuture(m forensics.Medium) *Future {
	return &Future{
		medium:    m,
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

// Medium returns the medium being analyzed.
func (f *Future) Medium() forensics.Medium { return f.medium }

// Done is closed once the analyzer has produced its result.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the result is ready, ctx is done or the future is
// abandoned.
func (f *Future) Await(ctx context.Context) (forensics.MediumResult, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, nil
	case <-f.abandoned:
		return nil, ErrAbandoned
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Abandon releases every waiter on this future. The analyzer goroutine runs
// to completion and its result is dropped; other futures are unaffected.
func (f *Future) Abandon() {
	f.once.Do(func() { close(f.abandoned) })
}

func (f *Future) complete(r forensics.MediumResult) {
	f.mu.Lock()
	f.result = r
	f.mu.Unlock()
	close(f.done)
}
