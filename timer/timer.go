// Package timer implements a single-shot delay that can be pushed back or
// cancelled from any goroutine.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type state uint8

const (
	idle state = iota
	running
	fired
	cancelled
)

// ResettableTimer calls fn once, interval after the last Start or Reset,
// unless Cancel is called first. fn runs on the timer's own goroutine.
//
// A panic inside fn is recovered and delivered to the errs channel given to
// New (if any); the timer is then considered fired.
type ResettableTimer struct {
	name string
	fn   func()
	errs chan<- error

	mu       sync.Mutex
	interval time.Duration
	state    state
	gen      uint64
	t        *time.Timer
}

func New(name string, interval time.Duration, fn func(), errs chan<- error) *ResettableTimer {
	return &ResettableTimer{
		name:     name,
		fn:       fn,
		errs:     errs,
		interval: interval,
	}
}

// Start begins the countdown. Calling Start on a timer that is already
// running, fired or cancelled does nothing.
func (r *ResettableTimer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != idle {
		return
	}
	r.state = running
	r.arm()
}

// Reset restarts the countdown, optionally with a new interval. It reports
// whether the deadline was actually extended: false means the callback has
// already been triggered or the timer was cancelled.
func (r *ResettableTimer) Reset(interval ...time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != running {
		return false
	}
	if len(interval) > 0 && interval[0] > 0 {
		r.interval = interval[0]
	}
	r.t.Stop()
	r.arm()
	return true
}

// Cancel permanently disables the timer.
func (r *ResettableTimer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == cancelled {
		return
	}
	r.state = cancelled
	if r.t != nil {
		r.t.Stop()
	}
}

func (r *ResettableTimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == running
}

func (r *ResettableTimer) String() string {
	return r.name
}

// must hold mu
func (r *ResettableTimer) arm() {
	r.gen++
	gen := r.gen
	r.t = time.AfterFunc(r.interval, func() { r.fire(gen) })
}

func (r *ResettableTimer) fire(gen uint64) {
	r.mu.Lock()
	// a Reset or Cancel won the race against this expiry
	if r.state != running || gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.state = fired
	r.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Errorf("timer %v: callback panicked: %v", r.name, rec)
			if r.errs == nil {
				panic(err)
			}
			select {
			case r.errs <- err:
			default:
				panic(fmt.Sprintf("%v (error channel full)", err))
			}
		}
	}()
	r.fn()
}
