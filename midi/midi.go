package midi

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/jsphweid/pianobot/model"
	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Quantizer converts wall clock offsets to ticks against a fixed tempo.
type Quantizer struct {
	BPM          float64
	TicksPerBeat uint16
}

func (q Quantizer) ticksPerSecond() float64 {
	return float64(q.TicksPerBeat) * q.BPM / 60
}

// Ticks returns d rounded to the nearest tick.
func (q Quantizer) Ticks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(math.Round(d.Seconds() * q.ticksPerSecond()))
}

func (q Quantizer) Duration(ticks uint32) time.Duration {
	return time.Duration(float64(ticks) / q.ticksPerSecond() * float64(time.Second))
}

func toMessage(e model.RecordedEvent) (gomidi.Message, bool) {
	switch e.Kind {
	case model.NoteOn:
		return gomidi.NoteOn(e.Channel, e.Key, e.Velocity), true
	case model.NoteOff:
		return gomidi.NoteOffVelocity(e.Channel, e.Key, e.Velocity), true
	case model.ControlChange:
		return gomidi.ControlChange(e.Channel, e.Key, e.Velocity), true
	}
	return nil, false
}

// EncodeTake renders recorded events as a single track SMF with a tempo
// meta event at the start.
func EncodeTake(events []model.RecordedEvent, q Quantizer) ([]byte, error) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(q.TicksPerBeat)

	var track smf.Track
	track.Add(0, smf.MetaTempo(q.BPM))
	var carry uint32
	for _, e := range events {
		msg, ok := toMessage(e)
		if !ok {
			// keep the timeline intact even if the event is dropped
			carry += e.Ticks
			continue
		}
		track.Add(e.Ticks+carry, msg)
		carry = 0
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return nil, errors.Wrap(err, "could not add take track")
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "could not write take")
	}
	return buf.Bytes(), nil
}

// DecodeTake reads back the note and control change events of a take in
// file order, with their delta ticks.
func DecodeTake(data []byte) (events []model.RecordedEvent, tpb uint16, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			e = errors.Errorf("panic while decoding take: %v", r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, 0, errors.Wrap(err, "error parsing midi file")
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, 0, errors.New("take does not use metric ticks")
	}

	for _, track := range s.Tracks {
		var pending uint32
		for _, evt := range track {
			pending += evt.Delta
			var ch, key, vel uint8
			re := model.RecordedEvent{}
			switch {
			case evt.Message.GetNoteOn(&ch, &key, &vel):
				re.Kind = model.NoteOn
			case evt.Message.GetNoteOff(&ch, &key, &vel):
				re.Kind = model.NoteOff
			case evt.Message.GetControlChange(&ch, &key, &vel):
				re.Kind = model.ControlChange
			default:
				continue
			}
			re.Channel, re.Key, re.Velocity, re.Ticks = ch, key, vel, pending
			pending = 0
			events = append(events, re)
		}
	}
	return events, uint16(mt), nil
}

func ReadTakeFile(filepath string) ([]model.RecordedEvent, uint16, error) {
	dat, err := os.ReadFile(filepath)
	if err != nil {
		return nil, 0, errors.Wrap(err, "error reading midi file")
	}
	return DecodeTake(dat)
}

func Describe(e model.RecordedEvent) string {
	return fmt.Sprintf("%-14v ch=%-2d key=%-3d vel=%-3d", e.Kind, e.Channel, e.Key, e.Velocity)
}
