package keymap

import (
	"errors"
	"fmt"
)

// MaxLines bounds both the output (row) and input (column) count so a row
// fits a uint32 mask.
const MaxLines = 32

// Layers.
const (
	LayerPrimary uint8 = 0
	LayerFn      uint8 = 1
)

// ErrLayoutShape is returned for empty, ragged or oversized grids.
var ErrLayoutShape = errors.New("keymap: invalid layout shape")

// Layout maps (output, input) intersections to keycodes on two layers.
type Layout struct {
	rows, cols int
	primary    [][]Keycode
	fn         [][]Keycode
	valid      []uint32
}

// NewLayout builds a layout from a primary grid and an optional fn grid of
// the same shape. Fn entries left as None fall through to the primary layer.
func NewLayout(primary, fn [][]Keycode) (*Layout, error) {
	rows := len(primary)
	if rows == 0 || rows > MaxLines {
		return nil, fmt.Errorf("%w: %d rows", ErrLayoutShape, rows)
	}
	cols := len(primary[0])
	if cols == 0 || cols > MaxLines {
		return nil, fmt.Errorf("%w: %d columns", ErrLayoutShape, cols)
	}
	for r, row := range primary {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: primary row %d has %d columns, want %d", ErrLayoutShape, r, len(row), cols)
		}
	}
	if fn == nil {
		fn = make([][]Keycode, rows)
		for r := range fn {
			fn[r] = make([]Keycode, cols)
		}
	}
	if len(fn) != rows {
		return nil, fmt.Errorf("%w: fn layer has %d rows, want %d", ErrLayoutShape, len(fn), rows)
	}
	for r, row := range fn {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: fn row %d has %d columns, want %d", ErrLayoutShape, r, len(row), cols)
		}
	}

	l := &Layout{rows: rows, cols: cols, primary: primary, fn: fn, valid: make([]uint32, rows)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if primary[r][c] != None || fn[r][c] != None {
				l.valid[r] |= 1 << uint(c)
			}
		}
	}
	return l, nil
}

// ParseLayout builds a layout from grids of key names.
func ParseLayout(primary, fn [][]string) (*Layout, error) {
	p, err := parseGrid(primary)
	if err != nil {
		return nil, fmt.Errorf("primary layer: %w", err)
	}
	var f [][]Keycode
	if len(fn) > 0 {
		if f, err = parseGrid(fn); err != nil {
			return nil, fmt.Errorf("fn layer: %w", err)
		}
	}
	return NewLayout(p, f)
}

func parseGrid(names [][]string) ([][]Keycode, error) {
	grid := make([][]Keycode, len(names))
	for r, row := range names {
		grid[r] = make([]Keycode, len(row))
		for c, name := range row {
			code, err := Parse(name)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", r, c, err)
			}
			grid[r][c] = code
		}
	}
	return grid, nil
}

// Rows returns the number of outputs.
func (l *Layout) Rows() int { return l.rows }

// Cols returns the number of inputs.
func (l *Layout) Cols() int { return l.cols }

// Lookup returns the keycode at (out, in) on the given layer.
func (l *Layout) Lookup(layer uint8, out, in int) Keycode {
	if out < 0 || out >= l.rows || in < 0 || in >= l.cols {
		return None
	}
	if layer != LayerPrimary {
		if code := l.fn[out][in]; code != None {
			return code
		}
	}
	return l.primary[out][in]
}

// IsKey reports whether (out, in) holds a real key on the primary layer.
func (l *Layout) IsKey(out, in int) bool {
	return l.Lookup(LayerPrimary, out, in) != None
}

// ValidMask returns the inputs of row out that have a key on any layer.
func (l *Layout) ValidMask(out int) uint32 {
	if out < 0 || out >= l.rows {
		return 0
	}
	return l.valid[out]
}

// Find returns the first primary-layer intersection holding code.
func (l *Layout) Find(code Keycode) (out, in int, ok bool) {
	for r := 0; r < l.rows; r++ {
		for c := 0; c < l.cols; c++ {
			if l.primary[r][c] == code {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}
