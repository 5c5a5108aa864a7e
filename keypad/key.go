package keypad

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
)

// Key is a virtual input pin for one key of a Matrix. Every read drives the
// key's column, samples its row and releases the column again, so reading two
// keys of the same column back to back costs two full scans.
//
// A Key reads gpio.Low while pressed, like a push button to ground on a
// pulled-up input.
type Key struct {
	m      *Matrix
	coord  Coord
	closed atomic.Bool
}

// Coord returns the key's position in the matrix.
func (k *Key) Coord() Coord { return k.coord }

// IsLow reports whether the key is pressed.
func (k *Key) IsLow() (bool, error) {
	if k.closed.Load() {
		return false, ErrKeyClosed
	}
	return k.m.scan(k.coord.Row, k.coord.Col)
}

// IsHigh reports whether the key is not pressed.
func (k *Key) IsHigh() (bool, error) {
	low, err := k.IsLow()
	if err != nil {
		return false, err
	}
	return !low, nil
}

// Read returns the key's logic level, so a Key can stand in for an InputPin.
func (k *Key) Read() (gpio.Level, error) {
	high, err := k.IsHigh()
	if err != nil {
		return gpio.High, err
	}
	return gpio.Level(high), nil
}

// Close gives the key back to its matrix. Closing twice is a no-op.
func (k *Key) Close() error {
	k.m.drop(k)
	return nil
}

func (k *Key) String() string {
	return "key " + k.coord.String()
}

// Grid holds the keys of a decomposed matrix, indexed [row][col].
type Grid [][]*Key

// At returns the key at c, or nil when c is outside the grid.
func (g Grid) At(c Coord) *Key {
	if c.Row < 0 || c.Row >= len(g) || c.Col < 0 || c.Col >= len(g[c.Row]) {
		return nil
	}
	return g[c.Row][c.Col]
}

// Keys returns all keys in row-major order.
func (g Grid) Keys() []*Key {
	var out []*Key
	for _, row := range g {
		out = append(out, row...)
	}
	return out
}

// Close closes every key in the grid.
func (g Grid) Close() error {
	for _, row := range g {
		for _, k := range row {
			if k != nil {
				k.Close()
			}
		}
	}
	return nil
}

// Decompose returns one Key per coordinate. The keys share the matrix and its
// scan guard. Only one decomposition can be open at a time.
func (m *Matrix) Decompose() (Grid, error) {
	m.life.Lock()
	defer m.life.Unlock()

	if m.released.Load() {
		return nil, ErrReleased
	}
	if m.live > 0 {
		return nil, fmt.Errorf("%w: %d keys open", ErrDecomposed, m.live)
	}

	grid := make(Grid, len(m.rows))
	for r := range grid {
		grid[r] = make([]*Key, len(m.cols))
		for c := range grid[r] {
			grid[r][c] = &Key{m: m, coord: Coord{Row: r, Col: c}}
		}
	}
	m.live = len(m.rows) * len(m.cols)
	return grid, nil
}

// Outstanding returns the number of open keys.
func (m *Matrix) Outstanding() int {
	m.life.Lock()
	defer m.life.Unlock()
	return m.live
}

// drop closes k and returns it to the open count. The flag and the count
// change under the same lock, so Release never sees one without the other.
func (m *Matrix) drop(k *Key) {
	m.life.Lock()
	defer m.life.Unlock()
	if k.closed.CompareAndSwap(false, true) && m.live > 0 {
		m.live--
	}
}

// Release gives the row and column pins back and consumes the matrix. keys
// must contain every key that is still open; keys closed earlier may be
// omitted, and a nil grid is fine once all keys are closed. If any open key is
// missing Release returns ErrKeysOutstanding and changes nothing.
//
// All columns are released before returning. A column that fails to release
// is reported in the error, but the pins are returned and the matrix is
// consumed regardless.
func (m *Matrix) Release(keys Grid) ([]InputPin, []OutputPin, error) {
	m.life.Lock()
	defer m.life.Unlock()

	if m.released.Load() {
		return nil, nil, ErrReleased
	}

	returned := make(map[*Key]struct{})
	for _, row := range keys {
		for _, k := range row {
			if k == nil || k.m != m || k.closed.Load() {
				continue
			}
			returned[k] = struct{}{}
		}
	}
	if len(returned) != m.live {
		return nil, nil, fmt.Errorf("%w: %d of %d open keys returned", ErrKeysOutstanding, len(returned), m.live)
	}

	// Refusals here are not counted in Stats.Rejected.
	if err := m.lock(); err != nil {
		return nil, nil, err
	}
	defer m.unlock()

	for k := range returned {
		k.closed.Store(true)
	}
	m.live = 0
	m.released.Store(true)

	rows := append([]InputPin(nil), m.rows...)
	cols := append([]OutputPin(nil), m.cols...)
	if err := m.releaseAll(); err != nil {
		return rows, cols, err
	}
	return rows, cols, nil
}
