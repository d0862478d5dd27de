// Package feedback plays short note patterns on the instrument so that
// someone sitting at it can tell what the bot just did.
package feedback

import (
	"log/slog"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type Cue uint8

const (
	Sad Cue = iota
	Happy
	HappyChords
)

func (c Cue) String() string {
	switch c {
	case Sad:
		return "sad"
	case Happy:
		return "happy"
	case HappyChords:
		return "happy_chords"
	}
	return "unknown"
}

// Send writes one message to the output port, see gomidi's midi.SendTo.
type Send func(msg gomidi.Message) error

// Player plays cues one after another on its own goroutine. Cue requests
// never block; if the backlog is full the request is dropped.
type Player struct {
	send  Send
	sleep func(time.Duration)
	log   *slog.Logger

	queue   chan Cue
	stop    chan struct{}
	done    chan struct{}
	started sync.Once
	once    sync.Once
}

func New(send Send, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		send:  send,
		sleep: time.Sleep,
		log:   log,
		queue: make(chan Cue, 16),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (p *Player) Start() {
	p.started.Do(func() {
		go p.run()
	})
}

func (p *Player) Happy()       { p.enqueue(Happy) }
func (p *Player) Sad()         { p.enqueue(Sad) }
func (p *Player) HappyChords() { p.enqueue(HappyChords) }

// Shutdown stops the player after the cue currently playing, if any.
func (p *Player) Shutdown() {
	p.Start()
	p.once.Do(func() {
		close(p.stop)
	})
	<-p.done
}

func (p *Player) enqueue(c Cue) {
	select {
	case <-p.stop:
		return
	default:
	}
	select {
	case p.queue <- c:
	default:
		p.log.Warn("feedback: dropping cue, player is busy", "cue", c)
	}
}

func (p *Player) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case c := <-p.queue:
			p.log.Debug("feedback: playing cue", "cue", c)
			p.play(c)
		}
	}
}

func (p *Player) play(c Cue) {
	switch c {
	case Sad:
		p.playNotes([]uint8{60, 60, 59, 59, 58, 58, 57, 57}, 100*time.Millisecond, 120)
	case Happy:
		p.playNotes([]uint8{100, 100, 101, 101, 102, 102, 103, 103}, 100*time.Millisecond, 120)
	case HappyChords:
		p.chord([]uint8{60, 64, 67}, 500*time.Millisecond)
		p.chord([]uint8{61, 65, 68}, 500*time.Millisecond)
		p.chord([]uint8{60, 64, 67}, 500*time.Millisecond)
	}
}

func (p *Player) playNotes(notes []uint8, d time.Duration, velocity uint8) {
	for _, n := range notes {
		p.write(gomidi.NoteOn(0, n, velocity))
		p.sleep(d)
		p.write(gomidi.NoteOffVelocity(0, n, velocity))
	}
}

func (p *Player) chord(notes []uint8, d time.Duration) {
	for _, n := range notes {
		p.write(gomidi.NoteOn(0, n, 112))
	}
	p.sleep(d)
	for _, n := range notes {
		p.write(gomidi.NoteOff(0, n))
	}
}

func (p *Player) write(msg gomidi.Message) {
	if p.send == nil {
		return
	}
	if err := p.send(msg); err != nil {
		p.log.Warn("feedback: could not send", "msg", msg.String(), "err", err)
	}
}
