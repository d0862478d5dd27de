//go:build e2e
// +build e2e

package e2e_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsphweid/pianobot/file"
	"github.com/jsphweid/pianobot/hotkey"
	"github.com/jsphweid/pianobot/ingest"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/publish"
	"github.com/jsphweid/pianobot/server"
	"github.com/jsphweid/pianobot/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silent struct{}

func (silent) Happy()       {}
func (silent) Sad()         {}
func (silent) HappyChords() {}

type bot struct {
	worker *ingest.Worker
	pub    *publish.Publisher
	takes  *file.Dir
	srv    *httptest.Server
}

func startBot(t *testing.T) *bot {
	takes := file.NewDir(filepath.Join(t.TempDir(), "takes"))
	pub := publish.New(publish.Options{Stores: []publish.Storage{takes}})
	pub.Start()

	opts := session.DefaultOptions()
	opts.IdleTimeout = 200 * time.Millisecond
	opts.RearmDelay = time.Hour
	worker, err := ingest.New(ingest.Config{
		Session: opts,
		Hotkeys: []hotkey.Binding{
			{Combo: []uint8{105, 107, 108}, Action: hotkey.ActionArmPublic},
			{Combo: []uint8{102, 104, 106}, Action: hotkey.ActionDisarm},
		},
		Start: time.Date(2019, 3, 1, 12, 0, 0, 0, time.Local),
	}, pub, silent{}, nil)
	require.NoError(t, err)
	worker.Start()

	srv := httptest.NewServer(server.New(worker, server.Options{Takes: takes.Takes}).Handler())
	b := &bot{worker: worker, pub: pub, takes: takes, srv: srv}
	t.Cleanup(func() {
		srv.Close()
		worker.Shutdown()
		pub.Shutdown()
	})
	return b
}

func (b *bot) post(t *testing.T, path string) {
	resp, err := http.Post(b.srv.URL+path, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, path)
}

func (b *bot) status(t *testing.T) model.Status {
	resp, err := http.Get(b.srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st model.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func (b *bot) takeNames(t *testing.T) []string {
	resp, err := http.Get(b.srv.URL + "/takes")
	require.NoError(t, err)
	defer resp.Body.Close()
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	return names
}

func play(t *testing.T, w *ingest.Worker, key uint8, at time.Duration, hold time.Duration) {
	require.NoError(t, w.Push(model.Event{Kind: model.NoteOn, Key: key, Velocity: 90, Delta: at, Raw: []byte{0x90, key, 90}}))
	require.NoError(t, w.Push(model.Event{Kind: model.NoteOff, Key: key, Delta: hold, Raw: []byte{0x80, key, 0}}))
}

func TestArmPlayAndIdleOut(t *testing.T) {
	b := startBot(t)
	b.post(t, "/arm")
	assert.Eventually(t, func() bool { return b.status(t).Armed }, time.Second, 5*time.Millisecond)

	play(t, b.worker, 60, 0, time.Second)
	assert.Eventually(t, func() bool { return b.status(t).Recording }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return len(b.takeNames(t)) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"piano-20190301120000"}, b.takeNames(t))
	assert.False(t, b.status(t).Recording)
	assert.True(t, b.status(t).Armed)

	events, tpb, err := midi.ReadTakeFile(b.takes.Path("piano-20190301120000.mid"))
	require.NoError(t, err)
	assert.Equal(t, uint16(480), tpb)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(960), events[1].Ticks)
	assert.FileExists(t, b.takes.Path("piano-20190301120000.json"))
}

func TestStopFlushesAndDisarmStopsRecording(t *testing.T) {
	b := startBot(t)
	b.post(t, "/arm")
	play(t, b.worker, 60, 0, 500*time.Millisecond)
	b.post(t, "/stop")
	assert.Eventually(t, func() bool { return len(b.takeNames(t)) == 1 }, time.Second, 10*time.Millisecond)

	b.post(t, "/disarm")
	assert.Eventually(t, func() bool { return !b.status(t).Armed }, time.Second, 5*time.Millisecond)

	play(t, b.worker, 62, time.Minute, time.Second)
	b.post(t, "/stop")
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, b.takeNames(t), 1)
}

func TestHotkeyArmsPublic(t *testing.T) {
	b := startBot(t)
	b.post(t, "/disarm")
	assert.Eventually(t, func() bool { return !b.status(t).Armed }, time.Second, 5*time.Millisecond)

	for _, k := range []uint8{105, 107, 108} {
		require.NoError(t, b.worker.Push(model.Event{Kind: model.NoteOn, Key: k, Velocity: 90, Raw: []byte{0x90, k, 90}}))
	}
	assert.Eventually(t, func() bool {
		st := b.status(t)
		return st.Armed && st.ArmedPublic
	}, time.Second, 5*time.Millisecond)
}
