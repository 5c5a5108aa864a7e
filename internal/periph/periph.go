// Package periph exposes keypad rows and columns through periph.io pins.
//
// periph has no generic open-drain mode, so columns emulate it: a released
// column is switched to a floating input, a driven column to an output low.
package periph

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sweeney/keypad/keypad"
)

// Pins holds the configured row and column pins of one keypad.
type Pins struct {
	rows []gpio.PinIO
	cols []gpio.PinIO
}

// Open initializes the host drivers and looks the pins up by name
// (e.g. "GPIO17").
func Open(rows, cols []string) (*Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	lookup := func(kind string, names []string) ([]gpio.PinIO, error) {
		out := make([]gpio.PinIO, 0, len(names))
		for _, name := range names {
			p := gpioreg.ByName(name)
			if p == nil {
				return nil, fmt.Errorf("%s pin %q: not found", kind, name)
			}
			out = append(out, p)
		}
		return out, nil
	}

	rowPins, err := lookup("row", rows)
	if err != nil {
		return nil, err
	}
	colPins, err := lookup("column", cols)
	if err != nil {
		return nil, err
	}
	return FromPins(rowPins, colPins)
}

// FromPins configures already resolved pins: rows as pulled-up inputs,
// columns released.
func FromPins(rows, cols []gpio.PinIO) (*Pins, error) {
	for _, p := range append(append([]gpio.PinIO(nil), rows...), cols...) {
		if p == nil {
			return nil, errors.New("periph: nil pin")
		}
	}
	for _, p := range rows {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("configure row pin %s: %w", p, err)
		}
	}
	for _, p := range cols {
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("configure column pin %s: %w", p, err)
		}
	}
	return &Pins{rows: rows, cols: cols}, nil
}

// Rows returns the row pins as keypad input pins.
func (p *Pins) Rows() []keypad.InputPin {
	out := make([]keypad.InputPin, len(p.rows))
	for i, pin := range p.rows {
		out[i] = rowPin{pin}
	}
	return out
}

// Cols returns the column pins as keypad output pins.
func (p *Pins) Cols() []keypad.OutputPin {
	out := make([]keypad.OutputPin, len(p.cols))
	for i, pin := range p.cols {
		out[i] = colPin{pin}
	}
	return out
}

// Close floats every column and halts all pins.
func (p *Pins) Close() error {
	var err error
	for _, pin := range p.cols {
		if ierr := pin.In(gpio.Float, gpio.NoEdge); ierr != nil {
			err = multierr.Append(err, fmt.Errorf("release column pin %s: %w", pin, ierr))
		}
	}
	for _, pin := range append(append([]gpio.PinIO(nil), p.rows...), p.cols...) {
		if herr := pin.Halt(); herr != nil {
			err = multierr.Append(err, fmt.Errorf("halt pin %s: %w", pin, herr))
		}
	}
	return err
}

type rowPin struct{ pin gpio.PinIO }

// Read never fails: periph reports levels without an error path.
func (r rowPin) Read() (gpio.Level, error) { return r.pin.Read(), nil }

func (r rowPin) String() string { return r.pin.String() }

type colPin struct{ pin gpio.PinIO }

func (c colPin) DriveLow() error {
	if err := c.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("drive %s low: %w", c.pin, err)
	}
	return nil
}

func (c colPin) Release() error {
	if err := c.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("release %s: %w", c.pin, err)
	}
	return nil
}

func (c colPin) String() string { return c.pin.String() }
