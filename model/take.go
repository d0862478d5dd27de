package model

import (
	"encoding/json"
	"time"
)

// RecordedEvent is a musical message inside a take. Ticks is the offset
// from the previous recorded event, quantized against the take's tempo.
type RecordedEvent struct {
	Kind     EventKind
	Channel  uint8
	Key      uint8
	Velocity uint8
	Ticks    uint32
}

// RawEvent is an untyped device message kept for the raw log.
type RawEvent struct {
	Time    time.Time     `json:"time"`
	Delta   time.Duration `json:"delta"`
	Message RawMessage    `json:"message"`
}

// RawMessage marshals as a plain list of byte values rather than base64.
type RawMessage []byte

func (m RawMessage) MarshalJSON() ([]byte, error) {
	values := make([]int, len(m))
	for i, b := range m {
		values[i] = int(b)
	}
	return json.Marshal(values)
}

func (m *RawMessage) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*m = make(RawMessage, len(values))
	for i, v := range values {
		(*m)[i] = byte(v)
	}
	return nil
}

type Take struct {
	ID        string
	Name      string
	StartedAt time.Time
	StoppedAt time.Time
	Public    bool
	Events    []RecordedEvent
	Raw       []RawEvent
}

func (t *Take) Duration() time.Duration {
	return t.StoppedAt.Sub(t.StartedAt)
}

type TakeMetadata struct {
	Name       string
	TakeID     string
	Public     bool
	Events     int
	DurationMs int64
	StartedAt  time.Time
}

func (t *Take) Metadata() TakeMetadata {
	return TakeMetadata{
		Name:       t.Name,
		TakeID:     t.ID,
		Public:     t.Public,
		Events:     len(t.Events),
		DurationMs: t.Duration().Milliseconds(),
		StartedAt:  t.StartedAt,
	}
}
