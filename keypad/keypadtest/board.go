// Package keypadtest simulates a keypad matrix on the host. A Board models
// pulled-up row inputs, open-drain column outputs and a set of pressed keys,
// and records every pin operation so tests can check scan ordering and the
// one-driven-column invariant.
package keypadtest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/sweeney/keypad/keypad"
)

// OpKind names a recorded pin operation.
type OpKind string

const (
	OpDrive   OpKind = "drive"
	OpRead    OpKind = "read"
	OpRelease OpKind = "release"
	OpSettle  OpKind = "settle"
)

// Op is one recorded pin operation.
type Op struct {
	Kind   OpKind
	Index  int        // column for drive/release, row for read
	Level  gpio.Level // read result
	Driven []int      // columns driven when the op completed
}

func (o Op) String() string {
	if o.Kind == OpRead {
		return fmt.Sprintf("%s %d=%v", o.Kind, o.Index, o.Level)
	}
	return fmt.Sprintf("%s %d", o.Kind, o.Index)
}

// Board is a simulated keypad matrix. A row reads low when a pressed key in
// that row sits on a column that is being driven low. It is safe for
// concurrent use.
type Board struct {
	mu        sync.Mutex
	nrows     int
	ncols     int
	pressed   map[keypad.Coord]bool
	driven    []bool
	maxDriven int
	ops       []Op

	readErr    map[int]error
	driveErr   map[int]error
	releaseErr map[int]error

	// OnRead, if set, runs after every row read, outside the board lock.
	OnRead func(row int)
}

// NewBoard returns a board with rows x cols keys, none pressed.
func NewBoard(rows, cols int) *Board {
	return &Board{
		nrows:      rows,
		ncols:      cols,
		pressed:    make(map[keypad.Coord]bool),
		driven:     make([]bool, cols),
		readErr:    make(map[int]error),
		driveErr:   make(map[int]error),
		releaseErr: make(map[int]error),
	}
}

// Press holds the key at (row, col) down.
func (b *Board) Press(row, col int) {
	b.mu.Lock()
	b.pressed[keypad.Coord{Row: row, Col: col}] = true
	b.mu.Unlock()
}

// Lift lets go of the key at (row, col).
func (b *Board) Lift(row, col int) {
	b.mu.Lock()
	delete(b.pressed, keypad.Coord{Row: row, Col: col})
	b.mu.Unlock()
}

// Pressed returns the held keys in row-major order.
func (b *Board) Pressed() []keypad.Coord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]keypad.Coord, 0, len(b.pressed))
	for c := range b.pressed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// FailRead makes reads of row fail with err. A nil err clears it.
func (b *Board) FailRead(row int, err error) { b.setErr(b.readErr, row, err) }

// FailDrive makes driving column col fail with err. A nil err clears it.
func (b *Board) FailDrive(col int, err error) { b.setErr(b.driveErr, col, err) }

// FailRelease makes releasing column col fail with err. A nil err clears it.
func (b *Board) FailRelease(col int, err error) { b.setErr(b.releaseErr, col, err) }

func (b *Board) setErr(m map[int]error, i int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(m, i)
		return
	}
	m[i] = err
}

// Rows returns the row input pins.
func (b *Board) Rows() []keypad.InputPin {
	out := make([]keypad.InputPin, b.nrows)
	for i := range out {
		out[i] = &rowPin{b: b, row: i}
	}
	return out
}

// Cols returns the column output pins.
func (b *Board) Cols() []keypad.OutputPin {
	out := make([]keypad.OutputPin, b.ncols)
	for i := range out {
		out[i] = &colPin{b: b, col: i}
	}
	return out
}

// Driven returns the columns currently driven low.
func (b *Board) Driven() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drivenLocked()
}

// MaxDriven returns the largest number of columns ever driven at once.
func (b *Board) MaxDriven() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxDriven
}

// Ops returns a copy of the recorded operations.
func (b *Board) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.ops...)
}

// ResetOps clears the operation log and the driven-column peak.
func (b *Board) ResetOps() {
	b.mu.Lock()
	b.ops = nil
	b.maxDriven = len(b.drivenLocked())
	b.mu.Unlock()
}

// Sleep records a settle wait without sleeping. Pass it to keypad.WithSleep.
func (b *Board) Sleep(time.Duration) {
	b.mu.Lock()
	b.ops = append(b.ops, Op{Kind: OpSettle, Index: -1, Driven: b.drivenLocked()})
	b.mu.Unlock()
}

func (b *Board) drivenLocked() []int {
	var out []int
	for c, d := range b.driven {
		if d {
			out = append(out, c)
		}
	}
	return out
}

func (b *Board) read(row int) (gpio.Level, error) {
	b.mu.Lock()
	if err := b.readErr[row]; err != nil {
		b.mu.Unlock()
		return gpio.High, err
	}
	level := gpio.High
	for c, d := range b.driven {
		if d && b.pressed[keypad.Coord{Row: row, Col: c}] {
			level = gpio.Low
			break
		}
	}
	b.ops = append(b.ops, Op{Kind: OpRead, Index: row, Level: level, Driven: b.drivenLocked()})
	hook := b.OnRead
	b.mu.Unlock()

	if hook != nil {
		hook(row)
	}
	return level, nil
}

func (b *Board) setColumn(col int, drive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, errs := OpRelease, b.releaseErr
	if drive {
		kind, errs = OpDrive, b.driveErr
	}
	if err := errs[col]; err != nil {
		return err
	}

	b.driven[col] = drive
	driven := b.drivenLocked()
	if len(driven) > b.maxDriven {
		b.maxDriven = len(driven)
	}
	b.ops = append(b.ops, Op{Kind: kind, Index: col, Driven: driven})
	return nil
}

type rowPin struct {
	b   *Board
	row int
}

func (p *rowPin) Read() (gpio.Level, error) { return p.b.read(p.row) }

func (p *rowPin) String() string { return fmt.Sprintf("R%d", p.row) }

type colPin struct {
	b   *Board
	col int
}

func (p *colPin) DriveLow() error { return p.b.setColumn(p.col, true) }

func (p *colPin) Release() error { return p.b.setColumn(p.col, false) }

func (p *colPin) String() string { return fmt.Sprintf("C%d", p.col) }
