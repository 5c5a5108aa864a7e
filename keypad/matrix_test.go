package keypad_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/sweeney/keypad/keypad"
	"github.com/sweeney/keypad/keypad/keypadtest"
)

func newMatrix(t *testing.T, rows, cols int, opts ...keypad.Option) (*keypad.Matrix, *keypadtest.Board) {
	t.Helper()
	b := keypadtest.NewBoard(rows, cols)
	opts = append([]keypad.Option{keypad.WithSleep(b.Sleep)}, opts...)
	m, err := keypad.New(b.Rows(), b.Cols(), opts...)
	require.NoError(t, err)
	b.ResetOps()
	return m, b
}

func TestNewValidation(t *testing.T) {
	b := keypadtest.NewBoard(2, 2)

	_, err := keypad.New(nil, b.Cols())
	assert.ErrorIs(t, err, keypad.ErrNoRows)

	_, err = keypad.New(b.Rows(), nil)
	assert.ErrorIs(t, err, keypad.ErrNoColumns)

	_, err = keypad.New([]keypad.InputPin{b.Rows()[0], nil}, b.Cols())
	assert.ErrorIs(t, err, keypad.ErrNilPin)

	_, err = keypad.New(b.Rows(), []keypad.OutputPin{nil})
	assert.ErrorIs(t, err, keypad.ErrNilPin)
}

func TestNewReleasesColumns(t *testing.T) {
	b := keypadtest.NewBoard(2, 3)
	cols := b.Cols()
	require.NoError(t, cols[1].DriveLow())
	require.Equal(t, []int{1}, b.Driven())

	m, err := keypad.New(b.Rows(), cols)
	require.NoError(t, err)
	assert.Empty(t, b.Driven())
	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 3, m.Cols())
	assert.Equal(t, keypad.DefaultSettle, m.Settle())
	assert.Equal(t, keypad.FailFast, m.Policy())
}

func TestNewPropagatesReleaseFailure(t *testing.T) {
	b := keypadtest.NewBoard(1, 2)
	boom := errors.New("bus fault")
	b.FailRelease(1, boom)

	_, err := keypad.New(b.Rows(), b.Cols())
	require.ErrorIs(t, err, boom)

	var pe *keypad.PinError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, keypad.OpRelease, pe.Op)
	assert.Equal(t, 1, pe.Index)
}

func TestTwoByTwoScenario(t *testing.T) {
	m, b := newMatrix(t, 2, 2)
	b.Press(1, 0)

	keys, err := m.Decompose()
	require.NoError(t, err)

	want := [][]bool{
		{false, false},
		{true, false},
	}
	for r := range want {
		for c := range want[r] {
			got, err := keys[r][c].IsLow()
			require.NoError(t, err)
			assert.Equal(t, want[r][c], got, "key (%d,%d)", r, c)
		}
	}
}

func TestSingleKeyAddressing(t *testing.T) {
	const rows, cols = 3, 4
	m, b := newMatrix(t, rows, cols)
	keys, err := m.Decompose()
	require.NoError(t, err)

	for pr := 0; pr < rows; pr++ {
		for pc := 0; pc < cols; pc++ {
			b.Press(pr, pc)
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					low, err := keys[r][c].IsLow()
					require.NoError(t, err)
					assert.Equal(t, r == pr && c == pc, low, "pressed (%d,%d), read (%d,%d)", pr, pc, r, c)
				}
			}
			b.Lift(pr, pc)
		}
	}
	assert.Equal(t, 1, b.MaxDriven())
}

func TestScanSequence(t *testing.T) {
	m, b := newMatrix(t, 2, 3)
	b.Press(1, 2)

	pressed, err := m.Scan(1, 2)
	require.NoError(t, err)
	assert.True(t, pressed)

	ops := b.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, keypadtest.OpDrive, ops[0].Kind)
	assert.Equal(t, 2, ops[0].Index)
	assert.Equal(t, keypadtest.OpSettle, ops[1].Kind)
	assert.Equal(t, keypadtest.OpRead, ops[2].Kind)
	assert.Equal(t, 1, ops[2].Index)
	assert.Equal(t, gpio.Low, ops[2].Level)
	assert.Equal(t, []int{2}, ops[2].Driven)
	assert.Equal(t, keypadtest.OpRelease, ops[3].Kind)
	assert.Equal(t, 2, ops[3].Index)
	assert.Empty(t, ops[3].Driven)
}

func TestRestorationBetweenScans(t *testing.T) {
	m, b := newMatrix(t, 4, 4)
	b.Press(0, 0)
	b.Press(3, 1)
	keys, err := m.Decompose()
	require.NoError(t, err)

	for _, k := range keys.Keys() {
		_, err := k.IsLow()
		require.NoError(t, err)
		assert.Empty(t, b.Driven(), "column left driven after %v", k)
	}

	for _, op := range b.Ops() {
		if op.Kind == keypadtest.OpRead {
			assert.Len(t, op.Driven, 1, "read saw %v", op.Driven)
		}
	}
	assert.Equal(t, 1, b.MaxDriven())
}

func TestSettle(t *testing.T) {
	b := keypadtest.NewBoard(1, 1)
	var slept []time.Duration
	sleep := func(d time.Duration) { slept = append(slept, d) }

	m, err := keypad.New(b.Rows(), b.Cols(), keypad.WithSleep(sleep))
	require.NoError(t, err)
	_, err = m.Scan(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{keypad.DefaultSettle}, slept)

	slept = nil
	m, err = keypad.New(b.Rows(), b.Cols(), keypad.WithSleep(sleep), keypad.WithSettle(0))
	require.NoError(t, err)
	_, err = m.Scan(0, 0)
	require.NoError(t, err)
	assert.Empty(t, slept)

	m, err = keypad.New(b.Rows(), b.Cols(), keypad.WithSettle(-time.Second))
	require.NoError(t, err)
	assert.Zero(t, m.Settle())
}

func TestScanOutOfRange(t *testing.T) {
	m, b := newMatrix(t, 2, 2)

	for _, c := range []keypad.Coord{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		_, err := m.Scan(c.Row, c.Col)
		assert.ErrorIs(t, err, keypad.ErrOutOfRange, "coord %v", c)
	}
	assert.Empty(t, b.Ops())
}

func TestReadFailureReleasesColumn(t *testing.T) {
	m, b := newMatrix(t, 2, 2)
	boom := errors.New("row stuck")
	b.FailRead(1, boom)

	_, err := m.Scan(1, 0)
	require.ErrorIs(t, err, boom)

	var pe *keypad.PinError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, keypad.OpRead, pe.Op)
	assert.Equal(t, 1, pe.Index)
	assert.Contains(t, err.Error(), "read row 1")
	assert.Empty(t, b.Driven())

	st := m.Stats()
	assert.Equal(t, uint64(1), st.Scans)
	assert.Equal(t, uint64(1), st.Failures)
}

func TestDriveFailure(t *testing.T) {
	m, b := newMatrix(t, 2, 2)
	boom := errors.New("driver fault")
	b.FailDrive(0, boom)

	_, err := m.Scan(0, 0)
	require.ErrorIs(t, err, boom)

	var pe *keypad.PinError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, keypad.OpDrive, pe.Op)
	for _, op := range b.Ops() {
		assert.NotEqual(t, keypadtest.OpRead, op.Kind, "row read after failed drive")
	}
}

func TestReleaseFailureReported(t *testing.T) {
	m, b := newMatrix(t, 1, 2)
	readErr := errors.New("row fault")
	relErr := errors.New("column fault")
	b.FailRead(0, readErr)
	b.FailRelease(1, relErr)

	_, err := m.Scan(0, 1)
	assert.ErrorIs(t, err, readErr)
	assert.ErrorIs(t, err, relErr)
}

func TestNestedScanFailsFast(t *testing.T) {
	m, b := newMatrix(t, 2, 2)
	b.Press(0, 1)
	keys, err := m.Decompose()
	require.NoError(t, err)

	var nestedErr error
	b.OnRead = func(int) {
		b.OnRead = nil
		_, nestedErr = keys[1][1].IsLow()
	}

	low, err := keys[0][1].IsLow()
	require.NoError(t, err)
	assert.True(t, low)
	assert.ErrorIs(t, nestedErr, keypad.ErrScanInProgress)
	assert.Equal(t, uint64(1), m.Stats().Rejected)
	assert.Equal(t, 1, b.MaxDriven())
	assert.False(t, m.Scanning())
}

func TestConcurrentFailFast(t *testing.T) {
	m, b := newMatrix(t, 4, 4, keypad.WithSleep(func(time.Duration) { time.Sleep(time.Microsecond) }))
	keys, err := m.Decompose()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16*50)
	for _, k := range keys.Keys() {
		wg.Add(1)
		go func(k *keypad.Key) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := k.IsLow(); err != nil {
					errs <- err
				}
			}
		}(k)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, keypad.ErrScanInProgress)
	}
	assert.Equal(t, 1, b.MaxDriven())
	assert.Empty(t, b.Driven())
}

func TestConcurrentBlocking(t *testing.T) {
	m, b := newMatrix(t, 4, 4, keypad.WithBlockingScans())
	require.Equal(t, keypad.Block, m.Policy())
	b.Press(2, 3)
	keys, err := m.Decompose()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, k := range keys.Keys() {
		wg.Add(1)
		go func(k *keypad.Key) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				low, err := k.IsLow()
				assert.NoError(t, err)
				assert.Equal(t, k.Coord() == keypad.Coord{Row: 2, Col: 3}, low)
			}
		}(k)
	}
	wg.Wait()

	assert.Equal(t, 1, b.MaxDriven())
	assert.Equal(t, uint64(16*50), m.Stats().Scans)
	assert.Zero(t, m.Stats().Rejected)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "fail-fast", keypad.FailFast.String())
	assert.Equal(t, "block", keypad.Block.String())
	assert.Equal(t, "Policy(7)", keypad.Policy(7).String())
}

type quietRow struct{}

func (quietRow) Read() (gpio.Level, error) { return gpio.High, nil }

type quietCol struct{}

func (quietCol) DriveLow() error { return nil }
func (quietCol) Release() error  { return nil }

func TestScanDoesNotAllocate(t *testing.T) {
	for _, policy := range []keypad.Policy{keypad.FailFast, keypad.Block} {
		t.Run(policy.String(), func(t *testing.T) {
			opts := []keypad.Option{keypad.WithSettle(0)}
			if policy == keypad.Block {
				opts = append(opts, keypad.WithBlockingScans())
			}
			m, err := keypad.New(
				[]keypad.InputPin{quietRow{}, quietRow{}},
				[]keypad.OutputPin{quietCol{}, quietCol{}},
				opts...,
			)
			require.NoError(t, err)
			require.Equal(t, policy, m.Policy())
			keys, err := m.Decompose()
			require.NoError(t, err)

			k := keys[1][1]
			allocs := testing.AllocsPerRun(1000, func() {
				if _, err := k.IsLow(); err != nil {
					t.Fatal(err)
				}
			})
			assert.Zero(t, allocs)
		})
	}
}

// Under Block a scan issued while another holds the guard waits for it, so a
// scan made synchronously from a pin call of the same matrix could never
// finish. Here the inner scan runs on its own goroutine to show the ordering.
func TestBlockingScanWaitsForGuard(t *testing.T) {
	m, b := newMatrix(t, 2, 2, keypad.WithBlockingScans())
	b.Press(1, 1)
	keys, err := m.Decompose()
	require.NoError(t, err)

	inner := make(chan error, 1)
	b.OnRead = func(int) {
		b.OnRead = nil
		go func() {
			_, err := keys[1][1].IsLow()
			inner <- err
		}()
		select {
		case err := <-inner:
			t.Errorf("inner scan finished while the outer scan held the guard: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		assert.True(t, m.Scanning())
	}

	_, err = keys[0][0].IsLow()
	require.NoError(t, err)
	assert.NoError(t, <-inner)
	assert.Equal(t, 1, b.MaxDriven())
	assert.Zero(t, m.Stats().Rejected)
}
