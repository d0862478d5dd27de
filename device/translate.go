package device

import (
	"time"

	"github.com/jsphweid/pianobot/model"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Translator turns driver messages into events. gomidi stamps messages with
// milliseconds since listening began; events carry the gap to the previous
// message instead. The first one after a Reset has no gap and is marked Sync.
type Translator struct {
	last    int32
	started bool
}

func (t *Translator) Reset() {
	t.last = 0
	t.started = false
}

func (t *Translator) Translate(msg gomidi.Message, timestampms int32) model.Event {
	var delta time.Duration
	if t.started && timestampms > t.last {
		delta = time.Duration(timestampms-t.last) * time.Millisecond
	}
	if !t.started || timestampms > t.last {
		t.last = timestampms
	}
	ev := model.Event{Delta: delta, Sync: !t.started}
	t.started = true

	var ch, key, vel uint8
	switch {
	case msg.Is(gomidi.ActiveSenseMsg):
		ev.Kind = model.LivenessPing
		return ev
	case msg.GetNoteStart(&ch, &key, &vel):
		ev.Kind = model.NoteOn
	case msg.GetNoteOff(&ch, &key, &vel):
		ev.Kind = model.NoteOff
	case msg.GetNoteEnd(&ch, &key):
		ev.Kind = model.NoteOff
		vel = 0
	case msg.GetControlChange(&ch, &key, &vel):
		ev.Kind = model.ControlChange
	default:
		ev.Kind = model.Unknown
	}
	ev.Channel, ev.Key, ev.Velocity = ch, key, vel
	ev.Raw = append([]byte(nil), msg.Bytes()...)
	return ev
}
