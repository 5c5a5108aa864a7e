//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"

	"github.com/sweeney/keypad/keypad"
)

// Lines holds the requested row and column lines of one keypad.
type Lines struct {
	chip *gpiocdev.Chip
	rows []*gpiocdev.Line
	cols []*gpiocdev.Line

	rowOffsets []int
	colOffsets []int
}

// Open requests the row and column lines on the named chip.
// Rows are inputs with pull-up, columns are open-drain outputs that start
// released (high impedance).
func Open(chip string, rows, cols []int) (*Lines, error) {
	if chip == "" {
		chip = DefaultChip
	}
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	l := &Lines{
		chip:       c,
		rowOffsets: append([]int(nil), rows...),
		colOffsets: append([]int(nil), cols...),
	}

	for _, offset := range rows {
		line, err := c.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("request row pin %d: %w", offset, err)
		}
		l.rows = append(l.rows, line)
	}

	for _, offset := range cols {
		line, err := c.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.AsOpenDrain)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("request column pin %d: %w", offset, err)
		}
		l.cols = append(l.cols, line)
	}

	return l, nil
}

// Rows returns the row lines as keypad input pins.
func (l *Lines) Rows() []keypad.InputPin {
	out := make([]keypad.InputPin, len(l.rows))
	for i, line := range l.rows {
		out[i] = RowPin(line, l.rowOffsets[i])
	}
	return out
}

// Cols returns the column lines as keypad output pins.
func (l *Lines) Cols() []keypad.OutputPin {
	out := make([]keypad.OutputPin, len(l.cols))
	for i, line := range l.cols {
		out[i] = ColumnPin(line, l.colOffsets[i])
	}
	return out
}

// Close releases GPIO resources.
// Every line is reconfigured to input with pull-up before closing so that no
// column is left driven and the keypad sits idle.
func (l *Lines) Close() error {
	var err error

	closeLine := func(kind string, offset int, line *gpiocdev.Line) {
		if rerr := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure %s pin %d: %w", kind, offset, rerr))
		}
		if cerr := line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s pin %d: %w", kind, offset, cerr))
		}
	}

	for i, line := range l.cols {
		closeLine("column", l.colOffsets[i], line)
	}
	for i, line := range l.rows {
		closeLine("row", l.rowOffsets[i], line)
	}
	l.rows, l.cols = nil, nil

	if l.chip != nil {
		if cerr := l.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
		l.chip = nil
	}
	return err
}
