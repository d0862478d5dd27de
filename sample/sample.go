// Package sample cuts short excerpts out of recorded takes.
package sample

import (
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Create copies mf from ticksOffset on, keeping at most maxNotes note on and
// note off messages per track. Anything else before the offset (tempo,
// pedal) is kept but squeezed together so the excerpt starts right away.
func Create(mf *smf.SMF, ticksOffset uint64, maxNotes int) *smf.SMF {
	res := smf.New()
	res.TimeFormat = mf.TimeFormat

	for _, track := range mf.Tracks {
		var newTrack smf.Track
		var absTicks uint64
		var numNoteOnOff int
		var started bool
		var skipped uint32
	TrackEventLoop:
		for _, evt := range track {
			absTicks += uint64(evt.Delta)
			switch {
			case evt.Message.Is(midi.NoteOnMsg),
				evt.Message.Is(midi.NoteOffMsg):
				if absTicks < ticksOffset {
					skipped += evt.Delta
					continue
				}
				if !started {
					// first kept note sits right at the offset
					evt.Delta = uint32(absTicks - ticksOffset)
					started = true
				} else {
					evt.Delta += skipped
				}
				skipped = 0
				newTrack = append(newTrack, evt)
				numNoteOnOff += 1
				if numNoteOnOff >= maxNotes {
					break TrackEventLoop
				}
			default:
				if !started {
					evt.Delta = 0
				} else {
					evt.Delta += skipped
					skipped = 0
				}
				newTrack = append(newTrack, evt)
			}
		}
		newTrack.Close(0)
		res.Tracks = append(res.Tracks, newTrack)
	}

	return res
}
