package ingest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jsphweid/pianobot/hotkey"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type take struct {
	prefix string
	events []model.RecordedEvent
	raw    []model.RawEvent
	public bool
}

type fakePublisher struct {
	mu    sync.Mutex
	takes []take
	texts []string
}

func (p *fakePublisher) PublishTake(prefix string, data []byte, public bool) {
	events, _, err := midi.DecodeTake(data)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.takes = append(p.takes, take{prefix: prefix, events: events, public: public})
}

func (p *fakePublisher) PublishRawLog(prefix string, events []model.RawEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.takes {
		if p.takes[i].prefix == prefix {
			p.takes[i].raw = events
		}
	}
}

func (p *fakePublisher) IndexTake(model.TakeMetadata) {}

func (p *fakePublisher) NotifyText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
}

func (p *fakePublisher) Takes() []take {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]take(nil), p.takes...)
}

type quietFeedback struct{}

func (quietFeedback) Happy()       {}
func (quietFeedback) Sad()         {}
func (quietFeedback) HappyChords() {}

type countingPinger struct{ n int32 }

func (c *countingPinger) Ping() { atomic.AddInt32(&c.n, 1) }

var start = time.Date(2019, 3, 1, 12, 0, 0, 0, time.Local)

func newWorker(t *testing.T, idle, rearm time.Duration, bindings []hotkey.Binding) (*Worker, *fakePublisher, *countingPinger) {
	opts := session.DefaultOptions()
	opts.IdleTimeout = idle
	opts.RearmDelay = rearm
	pub := &fakePublisher{}
	pinger := &countingPinger{}
	w, err := New(Config{Session: opts, Hotkeys: bindings, Start: start}, pub, quietFeedback{}, pinger)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Shutdown)
	return w, pub, pinger
}

func noteOn(key uint8, delta time.Duration) model.Event {
	return model.Event{Kind: model.NoteOn, Key: key, Velocity: 90, Delta: delta, Raw: []byte{0x90, key, 90}}
}

func noteOff(key uint8, delta time.Duration) model.Event {
	return model.Event{Kind: model.NoteOff, Key: key, Delta: delta, Raw: []byte{0x80, key, 0}}
}

func TestShutdownFlushesTakeInProgress(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, time.Hour, nil)
	require.NoError(t, w.Arm())
	require.NoError(t, w.Push(noteOn(60, 0)))
	require.NoError(t, w.Push(noteOff(60, time.Second)))
	w.Shutdown()
	w.Shutdown()

	takes := pub.Takes()
	require.Len(t, takes, 1)
	assert := assert.New(t)
	assert.Equal("piano-20190301120000", takes[0].prefix)
	assert.Equal([]model.RecordedEvent{
		{Kind: model.NoteOn, Key: 60, Velocity: 90, Ticks: 0},
		{Kind: model.NoteOff, Key: 60, Ticks: 960},
	}, takes[0].events)
	assert.Len(takes[0].raw, 2)
	assert.ErrorIs(w.Push(noteOn(61, 0)), ErrClosed)
	assert.False(w.Status().Recording)
}

func TestIdleTimeoutGoesThroughQueue(t *testing.T) {
	w, pub, _ := newWorker(t, 30*time.Millisecond, time.Hour, nil)
	w.Arm()
	w.Push(noteOn(60, 0))
	w.Push(noteOff(60, time.Second))

	assert := assert.New(t)
	assert.Eventually(func() bool { return len(pub.Takes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(func() bool { return !w.Status().Recording && w.Status().Armed }, time.Second, 5*time.Millisecond)
}

func TestHotkeyConsumedReleasesAreNotRecorded(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, time.Hour, []hotkey.Binding{
		{Combo: []uint8{105, 107, 108}, Action: hotkey.ActionArmPublic},
	})
	w.Arm()
	for _, k := range []uint8{105, 107, 108} {
		w.Push(noteOn(k, 0))
	}
	for _, k := range []uint8{105, 107, 108} {
		w.Push(noteOff(k, 100*time.Millisecond))
	}
	w.Push(noteOn(60, 0))
	w.Push(noteOff(60, time.Second))
	w.Shutdown()

	takes := pub.Takes()
	require.Len(t, takes, 1)
	var offs []uint8
	for _, e := range takes[0].events {
		if e.Kind == model.NoteOff {
			offs = append(offs, e.Key)
		}
	}
	assert := assert.New(t)
	assert.Equal([]uint8{60}, offs)
	assert.True(takes[0].public)
	assert.Len(takes[0].raw, 8, "raw log still sees every release")
}

func TestDisarmComboFlushesAndRearms(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, 300*time.Millisecond, []hotkey.Binding{
		{Combo: []uint8{102, 104, 106}, Action: hotkey.ActionDisarm},
	})
	w.Arm()
	w.Push(noteOn(60, 0))
	w.Push(noteOff(60, time.Second))
	for _, k := range []uint8{102, 104, 106} {
		w.Push(noteOn(k, 0))
	}

	assert := assert.New(t)
	assert.Eventually(func() bool { return len(pub.Takes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(func() bool { return !w.Status().Armed }, 250*time.Millisecond, 2*time.Millisecond)
	assert.Eventually(func() bool { return w.Status().Armed }, 2*time.Second, 5*time.Millisecond)
	assert.Len(pub.Takes()[0].events, 4, "chord note-ons before the disarm are part of the take")
}

func TestEventsAreProcessedInOrder(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, time.Hour, nil)
	w.Arm()
	for k := uint8(30); k < 90; k++ {
		w.Push(noteOn(k, 10*time.Millisecond))
	}
	w.Shutdown()

	takes := pub.Takes()
	require.Len(t, takes, 1)
	require.Len(t, takes[0].events, 60)
	for i, e := range takes[0].events {
		assert.Equal(t, uint8(30+i), e.Key)
	}
}

func TestLivenessAndUnknownEvents(t *testing.T) {
	w, pub, pinger := newWorker(t, time.Hour, time.Hour, nil)
	w.Arm()
	w.Push(model.Event{Kind: model.LivenessPing, Delta: 300 * time.Millisecond})
	w.Push(model.Event{Kind: model.LivenessPing, Delta: 300 * time.Millisecond})
	w.Push(model.Event{Kind: model.Unknown, Raw: []byte{0xF8}})
	w.Push(noteOn(60, 0))
	w.Shutdown()

	assert := assert.New(t)
	assert.Equal(int32(2), atomic.LoadInt32(&pinger.n))
	takes := pub.Takes()
	require.Len(t, takes, 1)
	assert.Len(takes[0].events, 1)
	assert.Len(takes[0].raw, 2)
	assert.Equal(start.Add(600*time.Millisecond), takes[0].raw[0].Time)
}

func TestGuardFailureStillRecordsNoteOff(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, time.Hour, nil)
	w.Arm()
	w.Push(noteOff(61, 0))
	w.Shutdown()

	takes := pub.Takes()
	require.Len(t, takes, 1)
	assert.Equal(t, model.NoteOff, takes[0].events[0].Kind)
}

func TestControl(t *testing.T) {
	w, _, _ := newWorker(t, time.Hour, time.Hour, nil)
	kind, ok := ControlKind("arm_public")
	require.True(t, ok)
	assert := assert.New(t)
	assert.NoError(w.Control(kind))
	assert.Error(w.Control(KindIdleExpired))
	assert.Eventually(func() bool { return w.Status().ArmedPublic }, time.Second, 5*time.Millisecond)
	_, ok = ControlKind("explode")
	assert.False(ok)
}

func TestReconnectResyncsClock(t *testing.T) {
	w, pub, _ := newWorker(t, time.Hour, time.Hour, nil)
	reconnected := time.Date(2019, 3, 1, 13, 0, 0, 0, time.Local)
	w.now = func() time.Time { return reconnected }

	require.NoError(t, w.Arm())
	first := noteOn(60, 0)
	first.Sync = true
	require.NoError(t, w.Push(first))
	require.NoError(t, w.Push(noteOff(60, time.Second)))
	w.Shutdown()

	takes := pub.Takes()
	require.Len(t, takes, 1)
	assert.Equal(t, "piano-20190301130000", takes[0].prefix)
}

func TestPostAfterCloseIsRejected(t *testing.T) {
	w, _, _ := newWorker(t, time.Hour, time.Hour, nil)
	require.NoError(t, w.Arm())

	w.closing.Lock()
	w.closed = true
	w.closing.Unlock()

	assert := assert.New(t)
	assert.ErrorIs(w.Push(noteOn(60, 0)), ErrClosed)
	assert.ErrorIs(w.Arm(), ErrClosed)
	select {
	case <-w.Done():
		t.Fatal("worker stopped before the shutdown sentinel")
	default:
	}

	w.Shutdown()
	assert.ErrorIs(w.Disarm(), ErrClosed)
}
