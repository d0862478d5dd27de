// Package keyboard tracks which piano keys are held down and which of them
// were swallowed by a hotkey chord.
package keyboard

import (
	"log/slog"
	"time"

	"github.com/jsphweid/pianobot/constants"
	"github.com/pkg/errors"
)

var ErrKeyOutOfRange = errors.New("key out of range")

// noteState is either the zero value (inactive) or an active note with the
// velocity and time it was struck.
type noteState struct {
	active   bool
	velocity uint8
	since    time.Time
}

// Release describes what a note-off meant for the key that was let go.
type Release struct {
	Key uint8
	// Duration is only meaningful when HasDuration is set.
	Duration    time.Duration
	HasDuration bool
	// Consumed is set when the key was part of a completed hotkey chord.
	Consumed bool
	// GuardFailed is set when the key was not held in the first place.
	GuardFailed bool
}

type Keyboard struct {
	notes    [constants.NumberOfPianoKeys]noteState
	consumed [constants.NumberOfPianoKeys]bool
	log      *slog.Logger
}

func New(log *slog.Logger) *Keyboard {
	if log == nil {
		log = slog.Default()
	}
	return &Keyboard{log: log}
}

func InRange(key uint8) bool {
	return int(key) < constants.NumberOfPianoKeys
}

// NoteOn marks key as held. A second note-on without a note-off in between
// simply overwrites the first one.
func (k *Keyboard) NoteOn(key, velocity uint8, t time.Time) error {
	if !InRange(key) {
		return errors.Wrapf(ErrKeyOutOfRange, "note on %d", key)
	}
	k.notes[key] = noteState{active: true, velocity: velocity, since: t}
	return nil
}

// NoteOff releases key. Releasing a key that is not held is logged and
// reported through Release.GuardFailed, it is not an error.
func (k *Keyboard) NoteOff(key, velocity uint8, t time.Time) (Release, error) {
	if !InRange(key) {
		return Release{}, errors.Wrapf(ErrKeyOutOfRange, "note off %d", key)
	}
	r := Release{Key: key}
	n := k.notes[key]
	if !n.active {
		k.log.Warn("keyboard: guard fail, note wasn't active when note off", "key", key, "velocity", velocity)
		r.GuardFailed = true
	}
	k.notes[key] = noteState{}

	if k.consumed[key] {
		k.consumed[key] = false
		r.Consumed = true
		return r, nil
	}
	if n.active {
		r.Duration = t.Sub(n.since)
		r.HasDuration = true
	}
	return r, nil
}

func (k *Keyboard) IsNoteActive(key uint8) bool {
	return InRange(key) && k.notes[key].active
}

// Velocity returns the strike velocity of a held key.
func (k *Keyboard) Velocity(key uint8) (uint8, bool) {
	if !k.IsNoteActive(key) {
		return 0, false
	}
	return k.notes[key].velocity, true
}

func (k *Keyboard) ActiveSince(key uint8) (time.Time, bool) {
	if !k.IsNoteActive(key) {
		return time.Time{}, false
	}
	return k.notes[key].since, true
}

// MarkConsumed flags key as swallowed by a hotkey until its next release.
func (k *Keyboard) MarkConsumed(key uint8) {
	if InRange(key) {
		k.consumed[key] = true
	}
}

func (k *Keyboard) IsConsumed(key uint8) bool {
	return InRange(key) && k.consumed[key]
}

func (k *Keyboard) ActiveKeys() []uint8 {
	var res []uint8
	for i, n := range k.notes {
		if n.active {
			res = append(res, uint8(i))
		}
	}
	return res
}
