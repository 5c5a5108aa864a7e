package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/keypad/internal/gpio"
	"github.com/sweeney/keypad/internal/periph"
	"github.com/sweeney/keypad/keypad"
	"github.com/sweeney/keypad/keypad/keypadtest"
)

const (
	driverCdev   = "cdev"
	driverPeriph = "periph"
	driverSim    = "sim"
)

// hardware is an opened set of row and column pins.
type hardware interface {
	Rows() []keypad.InputPin
	Cols() []keypad.OutputPin
	Close() error
}

// simHardware is a simulated board; the pin names only set its size.
type simHardware struct {
	*keypadtest.Board
}

func (simHardware) Close() error { return nil }

func openHardware(o *options) (hardware, error) {
	switch o.driver {
	case driverCdev:
		rows, err := parseOffsets(o.rows)
		if err != nil {
			return nil, fmt.Errorf("--rows: %w", err)
		}
		cols, err := parseOffsets(o.cols)
		if err != nil {
			return nil, fmt.Errorf("--cols: %w", err)
		}
		return gpio.Open(o.chip, rows, cols)

	case driverPeriph:
		return periph.Open(o.rows, o.cols)

	case driverSim:
		b := keypadtest.NewBoard(len(o.rows), len(o.cols))
		for _, p := range o.presses {
			c, err := parseCoord(p)
			if err != nil {
				return nil, fmt.Errorf("--press: %w", err)
			}
			if c.Row >= len(o.rows) || c.Col >= len(o.cols) {
				return nil, fmt.Errorf("--press %s: outside %dx%d matrix", p, len(o.rows), len(o.cols))
			}
			b.Press(c.Row, c.Col)
		}
		return simHardware{b}, nil
	}
	return nil, fmt.Errorf("unknown driver %q (want %s, %s or %s)", o.driver, driverCdev, driverPeriph, driverSim)
}

// openMatrix opens the pins and builds a matrix over them. The caller
// closes the returned hardware after releasing the matrix.
func openMatrix(o *options) (*keypad.Matrix, hardware, error) {
	hw, err := openHardware(o)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s pins: %w", o.driver, err)
	}
	m, err := keypad.New(hw.Rows(), hw.Cols(), o.matrixOptions()...)
	if err != nil {
		hw.Close()
		return nil, nil, fmt.Errorf("init matrix: %w", err)
	}
	return m, hw, nil
}

func parseOffsets(s []string) ([]int, error) {
	out := make([]int, 0, len(s))
	for _, v := range s {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid line offset %q", v)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseCoord parses "row,col".
func parseCoord(s string) (keypad.Coord, error) {
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return keypad.Coord{}, fmt.Errorf("invalid key %q, want row,col", s)
	}
	row, err1 := strconv.Atoi(strings.TrimSpace(r))
	col, err2 := strconv.Atoi(strings.TrimSpace(c))
	if err1 != nil || err2 != nil || row < 0 || col < 0 {
		return keypad.Coord{}, fmt.Errorf("invalid key %q, want row,col", s)
	}
	return keypad.Coord{Row: row, Col: col}, nil
}
