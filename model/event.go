package model

import (
	"fmt"
	"time"
)

type EventKind uint8

const (
	Unknown EventKind = iota
	NoteOn
	NoteOff
	ControlChange
	LivenessPing
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	case ControlChange:
		return "control_change"
	case LivenessPing:
		return "liveness_ping"
	}
	return "unknown"
}

// Event is a single message from the input device. Delta is the time
// elapsed since the previous message from the same source. Sync marks the
// first message after connecting, when there is no previous message and
// the receiver should set its clock to wall time instead. Raw keeps the
// undecoded bytes for the raw log.
type Event struct {
	Kind     EventKind
	Channel  uint8
	Key      uint8
	Velocity uint8
	Delta    time.Duration
	Sync     bool
	Raw      []byte
}

func (e Event) String() string {
	return fmt.Sprintf("%v ch=%d key=%d vel=%d delta=%v", e.Kind, e.Channel, e.Key, e.Velocity, e.Delta)
}
