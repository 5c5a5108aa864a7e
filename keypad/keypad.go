// Package keypad reads the keys of an N-row by M-column keypad matrix as if
// each key were wired to its own input pin.
//
// A matrix only exposes N+M physical lines: one pulled-up input per row and one
// open-drain output per column. Reading a key means driving its column low,
// waiting for the row line to settle, sampling the row and releasing the
// column again. A Matrix owns those lines and performs that sequence; Decompose
// hands out one virtual Key per coordinate that runs it on every read.
//
// Scans are not reentrant. Two overlapping scans on one Matrix would leave two
// columns driven or sample the wrong row, so every Matrix carries a guard: by
// default an overlapping scan fails immediately with ErrScanInProgress and
// touches no line. WithBlockingScans makes concurrent goroutines queue instead.
// Under the blocking policy a scan started from inside a pin callback of the
// same Matrix deadlocks; don't do that.
//
// Typical lifecycle:
//
//	m, err := keypad.New(rows, cols)
//	keys, err := m.Decompose()
//	pressed, err := keys[1][0].IsLow()
//	rows, cols, err = m.Release(keys)
package keypad

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// InputPin is a digital input. Row pins are expected to be pulled up so that
// an idle row reads gpio.High.
type InputPin interface {
	Read() (gpio.Level, error)
}

// OutputPin is an open-drain digital output. DriveLow actively pulls the line
// low; Release lets it float so the external pull-up wins.
type OutputPin interface {
	DriveLow() error
	Release() error
}

var (
	// ErrNoRows is returned by New when no row pins are given.
	ErrNoRows = errors.New("keypad: no row pins")
	// ErrNoColumns is returned by New when no column pins are given.
	ErrNoColumns = errors.New("keypad: no column pins")
	// ErrNilPin is returned by New when a row or column pin is nil.
	ErrNilPin = errors.New("keypad: nil pin")
	// ErrOutOfRange is returned by Matrix.Scan for a coordinate outside the matrix.
	ErrOutOfRange = errors.New("keypad: coordinate out of range")
	// ErrScanInProgress reports an attempt to start a scan while another scan
	// of the same matrix is in flight.
	ErrScanInProgress = errors.New("keypad: scan already in progress")
	// ErrDecomposed is returned by Decompose while keys from an earlier
	// decomposition are still open.
	ErrDecomposed = errors.New("keypad: matrix already decomposed")
	// ErrKeysOutstanding is returned by Release while keys are still open.
	ErrKeysOutstanding = errors.New("keypad: keys still outstanding")
	// ErrReleased is returned by any operation on a released matrix.
	ErrReleased = errors.New("keypad: matrix released")
	// ErrKeyClosed is returned when reading a closed key.
	ErrKeyClosed = errors.New("keypad: key closed")
)

// Op names the pin operation that failed inside a scan.
type Op string

const (
	OpDrive   Op = "drive"
	OpRead    Op = "read"
	OpRelease Op = "release"
)

// PinError wraps a failure reported by a row or column pin.
type PinError struct {
	Op    Op
	Index int // row index for OpRead, column index otherwise
	Err   error
}

func (e *PinError) Error() string {
	line := "column"
	if e.Op == OpRead {
		line = "row"
	}
	return fmt.Sprintf("keypad: %s %s %d: %v", e.Op, line, e.Index, e.Err)
}

func (e *PinError) Unwrap() error { return e.Err }

// Coord identifies one key of the matrix.
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return fmt.Sprintf("r%dc%d", c.Row, c.Col)
}
