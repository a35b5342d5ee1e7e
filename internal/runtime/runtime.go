// Package runtime provides the background-task runtime the scheduler spawns
// workers on.
package runtime

import (
	"sync"

	"github.com/tephradb/tephra/internal/logging"
)

// Runtime runs fire-and-forget background tasks.
type Runtime interface {
	// Spawn runs fn on a background goroutine.
	Spawn(fn func())
}

// Pool is the default Runtime. It tracks spawned tasks so Close can drain
// them, and contains panics so a failing worker cannot take the process
// down.
type Pool struct {
	wg     sync.WaitGroup
	logger logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool creates a runtime. logger may be nil.
func NewPool(logger logging.Logger) *Pool {
	return &Pool{logger: logging.OrDefault(logger)}
}

// Spawn runs fn on a new goroutine. Tasks spawned after Close are dropped.
func (p *Pool) Spawn(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warnf("runtime: task spawned after close, dropped")
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("runtime: background task panicked: %v", r)
			}
		}()
		fn()
	}()
}

// Close waits for all in-flight tasks to finish. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
