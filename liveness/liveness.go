// Package liveness watches the keep-alive messages of the input device.
package liveness

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
)

// Monitor flags the connection as timed out once no ping has been seen for
// the configured timeout. Devices that never ping are never timed out; the
// clock only starts with the first ping.
type Monitor struct {
	timeout   time.Duration
	debounced func(f func())
	log       *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	timedOut atomic.Bool
}

func New(timeout time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		timeout:   timeout,
		debounced: debounce.New(timeout),
		log:       log,
	}
}

func (m *Monitor) Ping() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if !m.started {
		m.started = true
		m.log.Debug("liveness: received first ping", "timeout", m.timeout)
	}
	m.debounced(m.expire)
}

func (m *Monitor) expire() {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}
	if !m.timedOut.Swap(true) {
		m.log.Warn("liveness: no ping from device", "timeout", m.timeout)
	}
}

// TimedOut is polled by the run loop.
func (m *Monitor) TimedOut() bool {
	return m.timedOut.Load()
}

func (m *Monitor) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Stop disarms the monitor. A pending expiry is replaced by a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.debounced(func() {})
}
