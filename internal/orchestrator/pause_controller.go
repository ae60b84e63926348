package orchestrator

import (
	"context"
	"errors"
	"sync"
)

// errAdmissionStopped is returned by WaitIfPaused once the gate has been
// stopped; the driver treats it as a shutdown signal.
var errAdmissionStopped = errors.New("admission stopped")

// PauseController gates item admission. The driver consults it before
// every admission pass; a pause holds the driver there until resume or
// stop. In-flight items are never affected.
type PauseController struct {
	mu      sync.RWMutex
	cond    *sync.Cond
	paused  bool
	stopped bool
}

// NewPauseController creates an open admission gate.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause holds back new admissions.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		debugLog("[pause] admission paused")
	}
}

// Resume releases a pause and wakes the driver.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		debugLog("[pause] admission resumed")
		p.cond.Broadcast()
	}
}

// Stop closes the gate for good. Blocked WaitIfPaused calls return.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether admission is currently paused.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped reports whether the gate has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks while the gate is paused. Returns nil when
// admission may proceed, the context error on cancellation, and
// errAdmissionStopped after Stop.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// A single watcher turns context cancellation into a broadcast
		// so the cond wait below can observe it.
		watcherDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-watcherDone:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(watcherDone)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(watcherDone)
	}
	if p.stopped {
		p.mu.Unlock()
		return errAdmissionStopped
	}
	p.mu.Unlock()
	return nil
}
