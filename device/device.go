// Package device connects to the instrument's MIDI ports.
package device

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jsphweid/pianobot/model"
	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var (
	ErrNotFound     = errors.New("no matching midi port")
	ErrNotConnected = errors.New("midi device is not connected")
)

// Device owns one input port and, when the instrument has one, the output
// port of the same name.
type Device struct {
	drv drivers.Driver
	log *slog.Logger

	mu    sync.Mutex
	in    drivers.In
	out   drivers.Out
	send  func(gomidi.Message) error
	stop  func()
	trans Translator

	connected atomic.Bool
}

func Open(log *slog.Logger) (*Device, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.Wrap(err, "could not open rtmidi driver")
	}
	return New(drv, log), nil
}

func New(drv drivers.Driver, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{drv: drv, log: log}
}

// Ports lists the names of all input and output ports.
func (d *Device) Ports() (ins []string, outs []string, err error) {
	inPorts, err := d.drv.Ins()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not list inputs")
	}
	outPorts, err := d.drv.Outs()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not list outputs")
	}
	for _, p := range inPorts {
		ins = append(ins, p.String())
	}
	for _, p := range outPorts {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

// Connect opens the first input whose name contains name (case-insensitive)
// and delivers its messages to handle, on the driver's goroutine.
func (d *Device) Connect(name string, handle func(model.Event)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeConn()

	ins, err := d.drv.Ins()
	if err != nil {
		return errors.Wrap(err, "could not list inputs")
	}
	in := matchPort(ins, name)
	if in == nil {
		return errors.Wrapf(ErrNotFound, "input %q", name)
	}
	if err := in.Open(); err != nil {
		return errors.Wrapf(err, "could not open %q", in.String())
	}

	d.trans.Reset()
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		handle(d.trans.Translate(msg, timestampms))
	}, gomidi.UseActiveSense(), gomidi.HandleError(func(err error) {
		d.log.Warn("device: listener error", "port", in.String(), "err", err)
		d.connected.Store(false)
	}))
	if err != nil {
		_ = in.Close()
		return errors.Wrapf(err, "could not listen to %q", in.String())
	}
	d.in = in
	d.stop = stop
	d.connected.Store(true)
	d.log.Info("device: connected", "input", in.String())

	d.openOutput(name)
	return nil
}

func (d *Device) openOutput(name string) {
	outs, err := d.drv.Outs()
	if err != nil {
		d.log.Warn("device: could not list outputs", "err", err)
		return
	}
	out := matchPort(outs, name)
	if out == nil {
		d.log.Info("device: no output port, feedback is disabled", "name", name)
		return
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		d.log.Warn("device: could not open output", "port", out.String(), "err", err)
		return
	}
	d.out = out
	d.send = send
	d.log.Info("device: connected", "output", out.String())
}

// Connected is false until Connect succeeds and again after the listener
// reports an error or Disconnect is called.
func (d *Device) Connected() bool {
	return d.connected.Load()
}

// Send writes to the output port.
func (d *Device) Send(msg gomidi.Message) error {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	return send(msg)
}

func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeConn()
}

func (d *Device) Close() {
	d.Disconnect()
	if err := d.drv.Close(); err != nil {
		d.log.Warn("device: could not close driver", "err", err)
	}
}

func (d *Device) closeConn() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	if d.in != nil {
		_ = d.in.Close()
		d.in = nil
	}
	if d.out != nil {
		_ = d.out.Close()
		d.out = nil
	}
	d.send = nil
	d.connected.Store(false)
}

func matchPort[P drivers.Port](ports []P, name string) P {
	var zero P
	want := strings.ToLower(name)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p
		}
	}
	return zero
}
