// Package session owns the recording lifecycle: arming, starting a take on
// the first activity, stopping it after a period of silence and handing the
// finished take to the publisher.
//
// A Session is not safe for concurrent use. Every method must be called from
// the single goroutine that owns it (the ingest worker). Timers never call
// into the session directly, they report expiry through the Loop, which
// queues it back onto that goroutine.
package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/timer"
)

const (
	textArmed         = "_will record for research purposes only when someone plays_"
	textDisarmed      = "_won't record for now_"
	textPublicStarted = "_just started a recording for public consumption_"
)

type State uint8

const (
	Disarmed State = iota
	ArmedIdle
	ArmedRecording
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "disarmed"
	case ArmedIdle:
		return "armed-idle"
	case ArmedRecording:
		return "armed-recording"
	}
	return "unknown"
}

// Publisher receives finished takes and status text. Calls must not block.
type Publisher interface {
	PublishTake(prefix string, data []byte, public bool)
	PublishRawLog(prefix string, events []model.RawEvent)
	IndexTake(meta model.TakeMetadata)
	NotifyText(text string)
}

// Feedback plays audible cues on the instrument. Calls must not block.
type Feedback interface {
	Happy()
	Sad()
	HappyChords()
}

// Loop brings timer expiries back onto the session's goroutine. The
// generation identifies the take or rearm period the timer belonged to.
type Loop interface {
	IdleExpired(gen uint64)
	RearmExpired(gen uint64)
}

type Options struct {
	IdleTimeout time.Duration
	RearmDelay  time.Duration
	Quantizer   midi.Quantizer
	// Errs receives panics from timer callbacks.
	Errs chan<- error
	Log  *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		IdleTimeout: constants.RecordingEndTimeout,
		RearmDelay:  constants.RecordingRearmTimeout,
		Quantizer:   midi.Quantizer{BPM: constants.DefaultBPM, TicksPerBeat: constants.DefaultTicksPerBeat},
	}
}

type Session struct {
	opts      Options
	publisher Publisher
	feedback  Feedback
	loop      Loop
	log       *slog.Logger

	armed       bool
	armedPublic bool
	recording   bool

	take      *model.Take
	takeGen   uint64
	lastTicks uint32
	lastEvent time.Time
	idleTimer *timer.ResettableTimer

	rearmGen   uint64
	rearmTimer *timer.ResettableTimer

	encode func([]model.RecordedEvent, midi.Quantizer) ([]byte, error)
}

func New(opts Options, publisher Publisher, feedback Feedback, loop Loop) *Session {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		opts:      opts,
		publisher: publisher,
		feedback:  feedback,
		loop:      loop,
		log:       log,
		encode:    midi.EncodeTake,
	}
}

func (s *Session) State() State {
	switch {
	case s.recording:
		return ArmedRecording
	case s.armed:
		return ArmedIdle
	}
	return Disarmed
}

func (s *Session) Armed() bool        { return s.armed }
func (s *Session) ArmedPublic() bool  { return s.armedPublic }
func (s *Session) Recording() bool    { return s.recording }
func (s *Session) RearmPending() bool { return s.rearmTimer != nil }

func (s *Session) Snapshot() model.Status {
	st := model.Status{
		Armed:       s.armed,
		ArmedPublic: s.armedPublic,
		Recording:   s.recording,
	}
	if s.take != nil {
		st.TakeEvents = len(s.take.Events)
	}
	return st
}

func (s *Session) Arm() {
	s.cancelRearm()
	if s.armed {
		s.log.Info("session: recording already armed")
		return
	}
	s.armed = true
	s.log.Info("session: recording armed")
	s.feedback.HappyChords()
	s.publisher.NotifyText(textArmed)
}

// ArmPublic arms and tags the next finished take for public distribution.
func (s *Session) ArmPublic() {
	s.Arm()
	s.armedPublic = true
	s.feedback.Happy()
	s.log.Info("session: recording armed as public")
}

// Disarm stops any take in progress and schedules an automatic rearm.
// Disarming while already disarmed only plays the sad cue.
func (s *Session) Disarm() {
	if !s.armed {
		s.log.Info("session: recording already disarmed")
		s.feedback.Sad()
		return
	}
	s.Stop()
	s.armed = false
	s.log.Info("session: recording disarmed", "rearm_in", s.opts.RearmDelay)
	s.feedback.Sad()
	s.scheduleRearm()
	s.publisher.NotifyText(textDisarmed)
}

func (s *Session) Toggle() {
	if s.armed {
		s.Disarm()
	} else {
		s.Arm()
	}
}

// Stop ends the current take, if any, and publishes it unless it is empty.
func (s *Session) Stop() {
	if !s.recording {
		return
	}
	s.recording = false
	s.idleTimer.Cancel()
	s.idleTimer = nil
	take := s.take
	s.take = nil
	take.StoppedAt = s.lastEvent
	s.lastEvent = time.Time{}
	s.lastTicks = 0

	if len(take.Events) == 0 {
		s.log.Info("session: take stopped with nothing recorded", "take", take.Name)
		return
	}

	take.Public = s.armedPublic
	s.armedPublic = false
	data, err := s.encode(take.Events, s.opts.Quantizer)
	if err != nil {
		// the raw log still holds everything that was played
		s.log.Error("session: could not encode take", "take", take.Name, "err", err)
		s.publisher.PublishRawLog(take.Name, take.Raw)
		return
	}
	s.log.Info("session: take finished",
		"take", take.Name,
		"id", take.ID,
		"events", len(take.Events),
		"raw_events", len(take.Raw),
		"public", take.Public,
		"duration", take.Duration(),
	)
	s.publisher.PublishTake(take.Name, data, take.Public)
	s.publisher.PublishRawLog(take.Name, take.Raw)
	s.publisher.IndexTake(take.Metadata())
}

// RecordEvent appends a musical event at time t, starting a take first if
// the session is armed and idle.
func (s *Session) RecordEvent(kind model.EventKind, channel, key, velocity uint8, t time.Time) {
	if !s.activity(t) {
		return
	}
	abs := s.opts.Quantizer.Ticks(t.Sub(s.take.StartedAt))
	var delta uint32
	if abs > s.lastTicks {
		delta = abs - s.lastTicks
		s.lastTicks = abs
	}
	s.take.Events = append(s.take.Events, model.RecordedEvent{
		Kind:     kind,
		Channel:  channel,
		Key:      key,
		Velocity: velocity,
		Ticks:    delta,
	})
	s.lastEvent = t
}

// RecordRaw appends an undecoded device message to the raw log of the take.
func (s *Session) RecordRaw(t time.Time, delta time.Duration, message []byte) {
	if !s.activity(t) {
		return
	}
	s.take.Raw = append(s.take.Raw, model.RawEvent{
		Time:    t,
		Delta:   delta,
		Message: append(model.RawMessage(nil), message...),
	})
	if t.After(s.lastEvent) {
		s.lastEvent = t
	}
}

// IdleExpired stops the take the idle timer of generation gen belonged to.
// Expiries for takes that already ended are ignored.
func (s *Session) IdleExpired(gen uint64) {
	if !s.recording || gen != s.takeGen {
		s.log.Debug("session: ignoring stale idle expiry", "gen", gen, "current", s.takeGen)
		return
	}
	s.log.Info("session: idle timeout, stopping take")
	s.Stop()
}

func (s *Session) RearmExpired(gen uint64) {
	if s.rearmTimer == nil || gen != s.rearmGen {
		s.log.Debug("session: ignoring stale rearm expiry", "gen", gen, "current", s.rearmGen)
		return
	}
	s.rearmTimer = nil
	s.log.Info("session: rearm delay elapsed")
	s.Arm()
}

// Shutdown flushes the take in progress and cancels all timers. Safe to
// call more than once.
func (s *Session) Shutdown() {
	s.Stop()
	s.cancelRearm()
}

// activity handles the bookkeeping every recorded event shares and reports
// whether a take is open to receive it.
func (s *Session) activity(t time.Time) bool {
	if s.rearmTimer != nil {
		s.rearmTimer.Reset()
	}
	if s.recording && !s.idleTimer.Reset() {
		// the idle timer fired but its expiry is still queued behind us
		s.log.Debug("session: idle timer already expired, rolling over take")
		s.Stop()
	}
	if !s.recording && s.armed {
		s.start(t)
	}
	return s.recording
}

func (s *Session) start(t time.Time) {
	s.recording = true
	s.takeGen++
	gen := s.takeGen
	s.take = &model.Take{
		ID:        uuid.New().String(),
		Name:      constants.TakePrefix + "-" + t.Local().Format(constants.TakeTimeLayout),
		StartedAt: t,
	}
	s.lastTicks = 0
	s.lastEvent = t
	s.idleTimer = timer.New("recording_idle", s.opts.IdleTimeout, func() { s.loop.IdleExpired(gen) }, s.opts.Errs)
	s.idleTimer.Start()
	s.log.Info("session: take started", "take", s.take.Name, "id", s.take.ID, "public", s.armedPublic)
	if s.armedPublic {
		s.publisher.NotifyText(textPublicStarted)
	}
}

func (s *Session) scheduleRearm() {
	s.cancelRearm()
	s.rearmGen++
	gen := s.rearmGen
	s.rearmTimer = timer.New("recording_rearm", s.opts.RearmDelay, func() { s.loop.RearmExpired(gen) }, s.opts.Errs)
	s.rearmTimer.Start()
}

func (s *Session) cancelRearm() {
	if s.rearmTimer == nil {
		return
	}
	s.rearmTimer.Cancel()
	s.rearmTimer = nil
}
