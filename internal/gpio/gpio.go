// Package gpio exposes keypad row and column lines on the Linux GPIO
// character device. Rows are requested as pulled-up inputs, columns as
// open-drain outputs. The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"

	conngpio "periph.io/x/conn/v3/gpio"

	"github.com/sweeney/keypad/keypad"
)

// DefaultChip is the GPIO chip used when none is given.
const DefaultChip = "gpiochip0"

// Consumer is the label attached to requested lines.
const Consumer = "keypad"

// Line is the part of a requested GPIO line the keypad pins use.
// *gpiocdev.Line satisfies it.
type Line interface {
	// Value returns the current line value, 0 or 1.
	Value() (int, error)

	// SetValue sets an output line. For open-drain lines 1 floats the line.
	SetValue(value int) error
}

// RowPin adapts an input line to keypad.InputPin.
func RowPin(l Line, offset int) keypad.InputPin {
	return &rowPin{line: l, offset: offset}
}

// ColumnPin adapts an open-drain output line to keypad.OutputPin.
func ColumnPin(l Line, offset int) keypad.OutputPin {
	return &colPin{line: l, offset: offset}
}

type rowPin struct {
	line   Line
	offset int
}

func (p *rowPin) Read() (conngpio.Level, error) {
	v, err := p.line.Value()
	if err != nil {
		return conngpio.High, fmt.Errorf("read line %d: %w", p.offset, err)
	}
	return conngpio.Level(v != 0), nil
}

func (p *rowPin) String() string { return fmt.Sprintf("line %d (row)", p.offset) }

type colPin struct {
	line   Line
	offset int
}

// DriveLow pulls the column to ground.
func (p *colPin) DriveLow() error {
	if err := p.line.SetValue(0); err != nil {
		return fmt.Errorf("drive line %d low: %w", p.offset, err)
	}
	return nil
}

// Release floats the column; the row pull-ups see no path to ground.
func (p *colPin) Release() error {
	if err := p.line.SetValue(1); err != nil {
		return fmt.Errorf("release line %d: %w", p.offset, err)
	}
	return nil
}

func (p *colPin) String() string { return fmt.Sprintf("line %d (column)", p.offset) }
