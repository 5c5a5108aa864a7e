package keypad

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

// DefaultSettle is the wait between driving a column and sampling a row.
// The right value depends on the board (trace capacitance, pull-up strength);
// 10µs is generous for typical membrane and tactile keypads.
const DefaultSettle = 10 * time.Microsecond

// Policy decides what happens when a scan starts while another is in flight.
type Policy int

const (
	// FailFast rejects the overlapping scan with ErrScanInProgress.
	FailFast Policy = iota
	// Block makes the overlapping scan wait for the one in flight.
	Block
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Block:
		return "block"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Option configures a Matrix.
type Option func(*Matrix)

// WithSettle sets the settle interval. Zero skips the wait entirely.
func WithSettle(d time.Duration) Option {
	return func(m *Matrix) {
		if d < 0 {
			d = 0
		}
		m.settle = d
	}
}

// WithSleep replaces time.Sleep for the settle wait.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Matrix) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithBlockingScans serializes overlapping scans instead of rejecting them.
// The guard is not reentrant: a scan started from inside a pin call of the
// same matrix blocks forever under this policy. Pins whose calls may read a
// key of the same matrix need the default FailFast policy, which reports
// ErrScanInProgress instead.
func WithBlockingScans() Option {
	return func(m *Matrix) { m.policy = Block }
}

// Stats counts scan activity since the matrix was created.
type Stats struct {
	Scans    uint64 // completed or failed scan attempts that touched the lines
	Failures uint64 // scans that returned a pin error
	Rejected uint64 // overlapping scans refused under FailFast
}

// Matrix owns the row and column pins of one keypad. At most one column is
// driven low at any time.
type Matrix struct {
	rows   []InputPin
	cols   []OutputPin
	settle time.Duration
	sleep  func(time.Duration)
	policy Policy

	mu   sync.Mutex // held for the duration of a scan under Block
	busy atomic.Bool

	// lifecycle, guarded by life
	life     sync.Mutex
	live     int
	released atomic.Bool

	scans    atomic.Uint64
	failures atomic.Uint64
	rejected atomic.Uint64
}

// New takes ownership of rows and cols. Every column is released before New
// returns, so the matrix starts with no column driven.
func New(rows []InputPin, cols []OutputPin, opts ...Option) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	for i, r := range rows {
		if r == nil {
			return nil, fmt.Errorf("%w: row %d", ErrNilPin, i)
		}
	}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("%w: column %d", ErrNilPin, i)
		}
	}

	m := &Matrix{
		rows:   append([]InputPin(nil), rows...),
		cols:   append([]OutputPin(nil), cols...),
		settle: DefaultSettle,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.releaseAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.rows) }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return len(m.cols) }

// Policy returns the overlapping-scan policy.
func (m *Matrix) Policy() Policy { return m.policy }

// Settle returns the configured settle interval.
func (m *Matrix) Settle() time.Duration { return m.settle }

// Stats returns a snapshot of the scan counters.
func (m *Matrix) Stats() Stats {
	return Stats{
		Scans:    m.scans.Load(),
		Failures: m.failures.Load(),
		Rejected: m.rejected.Load(),
	}
}

// Scan samples the key at (row, col) and reports whether it is pressed.
// Keys returned by Decompose call this for their own coordinate.
func (m *Matrix) Scan(row, col int) (bool, error) {
	if m.released.Load() {
		return false, ErrReleased
	}
	if row < 0 || row >= len(m.rows) || col < 0 || col >= len(m.cols) {
		return false, fmt.Errorf("%w: %v in %dx%d matrix", ErrOutOfRange, Coord{row, col}, len(m.rows), len(m.cols))
	}
	return m.scan(row, col)
}

func (m *Matrix) scan(row, col int) (bool, error) {
	if m.released.Load() {
		return false, ErrReleased
	}
	if err := m.lock(); err != nil {
		m.rejected.Add(1)
		return false, err
	}
	defer m.unlock()

	// Release may have won the guard just before us.
	if m.released.Load() {
		return false, ErrReleased
	}

	m.scans.Add(1)
	pressed, err := m.sample(row, col)
	if err != nil {
		m.failures.Add(1)
	}
	return pressed, err
}

// sample runs drive, settle, read, release. The column is released even when
// the drive or the read fails.
func (m *Matrix) sample(row, col int) (bool, error) {
	c := m.cols[col]

	if err := c.DriveLow(); err != nil {
		err = &PinError{Op: OpDrive, Index: col, Err: err}
		if rerr := c.Release(); rerr != nil {
			err = multierr.Append(err, &PinError{Op: OpRelease, Index: col, Err: rerr})
		}
		return false, err
	}

	if m.settle > 0 {
		m.sleep(m.settle)
	}

	level, rerr := m.rows[row].Read()

	var err error
	if rerr != nil {
		err = &PinError{Op: OpRead, Index: row, Err: rerr}
	}
	if cerr := c.Release(); cerr != nil {
		err = multierr.Append(err, &PinError{Op: OpRelease, Index: col, Err: cerr})
	}
	if err != nil {
		return false, err
	}
	return !bool(level), nil
}

// lock takes the scan guard according to the policy. It does not allocate.
func (m *Matrix) lock() error {
	if m.policy == Block {
		m.mu.Lock()
		m.busy.Store(true)
		return nil
	}
	if !m.busy.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	return nil
}

func (m *Matrix) unlock() {
	m.busy.Store(false)
	if m.policy == Block {
		m.mu.Unlock()
	}
}

// Scanning reports whether a scan is in flight.
func (m *Matrix) Scanning() bool { return m.busy.Load() }

func (m *Matrix) releaseAll() error {
	var err error
	for i, c := range m.cols {
		if cerr := c.Release(); cerr != nil {
			err = multierr.Append(err, &PinError{Op: OpRelease, Index: i, Err: cerr})
		}
	}
	return err
}
