//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/keypad/keypad"
)

// Lines is not available on non-Linux platforms.
type Lines struct{}

// Open returns an error on non-Linux platforms.
func Open(chip string, rows, cols []int) (*Lines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Rows is not implemented on non-Linux platforms.
func (l *Lines) Rows() []keypad.InputPin { return nil }

// Cols is not implemented on non-Linux platforms.
func (l *Lines) Cols() []keypad.OutputPin { return nil }

// Close is not implemented on non-Linux platforms.
func (l *Lines) Close() error {
	return nil
}
