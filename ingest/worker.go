// Package ingest serializes every stimulus that can change session state.
//
// Device events, operator commands and timer expiries all arrive as
// Commands on one queue and are handled in order by a single goroutine,
// which is the only one ever touching the keyboard, the hotkey matcher and
// the session.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/hotkey"
	"github.com/jsphweid/pianobot/keyboard"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/session"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("ingest worker is closed")

// Pinger is told about every liveness ping as soon as it is pushed.
type Pinger interface {
	Ping()
}

type Config struct {
	Session session.Options
	Hotkeys []hotkey.Binding
	// Start is the wall clock time the first event delta counts from.
	Start     time.Time
	QueueSize int
	Log       *slog.Logger
}

type Worker struct {
	queue chan Command
	done  chan struct{}
	errs  chan error

	keys    *keyboard.Keyboard
	hotkeys *hotkey.Matcher
	session *session.Session
	pinger  Pinger
	log     *slog.Logger

	clock    time.Time
	now      func() time.Time
	status   atomic.Pointer[model.Status]
	started  sync.Once
	shutdown sync.Once

	// closing is held for writing while Shutdown marks the worker closed, so
	// nothing posted after that can land behind the shutdown sentinel.
	closing sync.RWMutex
	closed  bool
}

func New(cfg Config, publisher session.Publisher, feedback session.Feedback, pinger Pinger) (*Worker, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = constants.QueueSize
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	w := &Worker{
		queue:  make(chan Command, size),
		done:   make(chan struct{}),
		errs:   make(chan error, 4),
		pinger: pinger,
		log:    log,
		clock:  start,
		now:    time.Now,
	}

	opts := cfg.Session
	opts.Errs = w.errs
	if opts.Log == nil {
		opts.Log = log
	}
	w.session = session.New(opts, publisher, feedback, w)
	w.keys = keyboard.New(log)

	commands, err := hotkey.Resolve(cfg.Hotkeys, map[string]func(){
		hotkey.ActionArm:       w.session.Arm,
		hotkey.ActionArmPublic: w.session.ArmPublic,
		hotkey.ActionDisarm:    w.session.Disarm,
		hotkey.ActionToggle:    w.session.Toggle,
		hotkey.ActionStop:      w.session.Stop,
	})
	if err != nil {
		return nil, err
	}
	w.hotkeys, err = hotkey.New(w.keys, commands, log)
	if err != nil {
		return nil, err
	}
	w.storeStatus()
	return w, nil
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.started.Do(func() {
		go w.run()
	})
}

// Done is closed once the worker has processed the shutdown sentinel.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Errors reports failures of timer callbacks. They are fatal to the run.
func (w *Worker) Errors() <-chan error {
	return w.errs
}

// Status is the session state as of the last processed command.
func (w *Worker) Status() model.Status {
	return *w.status.Load()
}

// Push queues a device event. Liveness pings are forwarded to the pinger
// right away so a busy queue cannot make the device look dead.
func (w *Worker) Push(ev model.Event) error {
	if ev.Kind == model.LivenessPing && w.pinger != nil {
		w.pinger.Ping()
	}
	return w.post(Command{Kind: KindEvent, Event: ev})
}

func (w *Worker) Arm() error       { return w.post(Command{Kind: KindArm}) }
func (w *Worker) ArmPublic() error { return w.post(Command{Kind: KindArmPublic}) }
func (w *Worker) Disarm() error    { return w.post(Command{Kind: KindDisarm}) }
func (w *Worker) Toggle() error    { return w.post(Command{Kind: KindToggle}) }
func (w *Worker) Stop() error      { return w.post(Command{Kind: KindStop}) }

// Control posts one of the operator commands by kind.
func (w *Worker) Control(kind Kind) error {
	switch kind {
	case KindArm, KindArmPublic, KindDisarm, KindToggle, KindStop:
		return w.post(Command{Kind: kind})
	}
	return errors.Errorf("%v is not an operator command", kind)
}

// IdleExpired and RearmExpired are called from timer goroutines.
func (w *Worker) IdleExpired(gen uint64) {
	if err := w.post(Command{Kind: KindIdleExpired, Gen: gen}); err != nil {
		w.log.Debug("ingest: dropping idle expiry", "gen", gen, "err", err)
	}
}

func (w *Worker) RearmExpired(gen uint64) {
	if err := w.post(Command{Kind: KindRearmExpired, Gen: gen}); err != nil {
		w.log.Debug("ingest: dropping rearm expiry", "gen", gen, "err", err)
	}
}

// Shutdown stops the take in progress, lets the worker drain everything
// queued before it and waits for it to exit. Calling it again, or after the
// worker is gone, is harmless.
func (w *Worker) Shutdown() {
	w.Start()
	w.shutdown.Do(func() {
		w.log.Info("ingest: shutting down")
		w.closing.Lock()
		w.closed = true
		w.closing.Unlock()
		if err := w.send(Command{Kind: KindStop}); err != nil {
			return
		}
		_ = w.send(Command{Kind: KindShutdown})
	})
	<-w.done
}

func (w *Worker) post(c Command) error {
	w.closing.RLock()
	defer w.closing.RUnlock()
	if w.closed {
		return ErrClosed
	}
	return w.send(c)
}

func (w *Worker) send(c Command) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.queue <- c:
		return nil
	case <-w.done:
		return ErrClosed
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for c := range w.queue {
		w.log.Debug("ingest: dequeued", "kind", c.Kind, "event", c.Event)
		if c.Kind == KindShutdown {
			w.session.Shutdown()
			w.storeStatus()
			return
		}
		w.handle(c)
		w.storeStatus()
	}
}

func (w *Worker) handle(c Command) {
	switch c.Kind {
	case KindEvent:
		w.handleEvent(c.Event)
	case KindArm:
		w.session.Arm()
	case KindArmPublic:
		w.session.ArmPublic()
	case KindDisarm:
		w.session.Disarm()
	case KindToggle:
		w.session.Toggle()
	case KindStop:
		w.session.Stop()
	case KindIdleExpired:
		w.session.IdleExpired(c.Gen)
	case KindRearmExpired:
		w.session.RearmExpired(c.Gen)
	default:
		w.log.Error("ingest: unknown command", "kind", c.Kind)
	}
}

func (w *Worker) handleEvent(ev model.Event) {
	if ev.Sync {
		// nothing to count from after a (re)connect, take wall time
		w.clock = w.now()
	} else {
		w.clock = w.clock.Add(ev.Delta)
	}
	t := w.clock

	if ev.Kind == model.LivenessPing {
		return
	}
	if len(ev.Raw) > 0 {
		w.session.RecordRaw(t, ev.Delta, ev.Raw)
	}

	switch ev.Kind {
	case model.NoteOn:
		if err := w.keys.NoteOn(ev.Key, ev.Velocity, t); err != nil {
			w.log.Warn("ingest: ignoring key state for note on", "err", err)
		} else {
			w.hotkeys.Check(ev.Key)
		}
		w.session.RecordEvent(model.NoteOn, ev.Channel, ev.Key, ev.Velocity, t)
	case model.NoteOff:
		r, err := w.keys.NoteOff(ev.Key, ev.Velocity, t)
		if err != nil {
			w.log.Warn("ingest: ignoring key state for note off", "err", err)
		}
		if r.Consumed {
			w.log.Debug("ingest: note off swallowed by hotkey", "key", ev.Key)
			return
		}
		if r.HasDuration {
			w.log.Debug("ingest: note released", "key", ev.Key, "duration", r.Duration)
		}
		w.session.RecordEvent(model.NoteOff, ev.Channel, ev.Key, ev.Velocity, t)
	case model.ControlChange:
		w.session.RecordEvent(model.ControlChange, ev.Channel, ev.Key, ev.Velocity, t)
	default:
		w.log.Warn("ingest: unrecognized message", "event", ev, "raw", ev.Raw)
	}
}

func (w *Worker) storeStatus() {
	st := w.session.Snapshot()
	w.status.Store(&st)
}
