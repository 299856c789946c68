//go:build midi_native

package device

import (
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the driver

	miditip "github.com/rapidmidiex/miditip/internal"
)

type input struct {
	port drivers.In
	stop func()
	c    chan miditip.MidiEvent
	once sync.Once
}

func openIn(name string) (In, error) {
	var ps []Port
	ins := midi.GetInPorts()
	for _, p := range ins {
		ps = append(ps, Port{Number: p.Number(), Name: p.String()})
	}

	p, err := find(ps, name)
	if err != nil {
		return nil, errors.Wrapf(err, "input %q", name)
	}

	var port drivers.In
	for _, in := range ins {
		if in.Number() == p.Number {
			port = in
		}
	}

	w := &input{port: port, c: make(chan miditip.MidiEvent, 256)}

	// the driver calls back on its own thread; a full buffer drops the message
	w.stop, err = midi.ListenTo(port, func(m midi.Message, _ int32) {
		e, ok := fromBytes(m)
		if !ok {
			return
		}
		select {
		case w.c <- e:
		default:
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listen to %s", p.Name)
	}

	return w, nil
}

func (w *input) Events() <-chan miditip.MidiEvent { return w.c }

func (w *input) Close() error {
	var err error
	w.once.Do(func() {
		w.stop()
		err = w.port.Close()
		close(w.c)
	})
	return err
}

type output struct {
	port drivers.Out
	send func(midi.Message) error
}

func openOut(name string) (Out, error) {
	var ps []Port
	outs := midi.GetOutPorts()
	for _, p := range outs {
		ps = append(ps, Port{Number: p.Number(), Name: p.String()})
	}

	p, err := find(ps, name)
	if err != nil {
		return nil, errors.Wrapf(err, "output %q", name)
	}

	var port drivers.Out
	for _, out := range outs {
		if out.Number() == p.Number {
			port = out
		}
	}

	send, err := midi.SendTo(port)
	if err != nil {
		return nil, errors.Wrapf(err, "send to %s", p.Name)
	}

	return &output{port: port, send: send}, nil
}

func (o *output) Send(e miditip.MidiEvent) error {
	b := toBytes(e)
	if len(b) == 0 {
		return nil
	}
	return o.send(midi.Message(b))
}

func (o *output) Close() error { return o.port.Close() }

func listPorts() (Ports, error) {
	var ps Ports
	for _, p := range midi.GetInPorts() {
		ps.In = append(ps.In, Port{Number: p.Number(), Name: p.String()})
	}
	for _, p := range midi.GetOutPorts() {
		ps.Out = append(ps.Out, Port{Number: p.Number(), Name: p.String()})
	}
	return ps, nil
}

func closeDriver() { midi.CloseDriver() }
