// Package vmatrix emulates a passive (diode-less) key switch matrix on the
// host. It implements the GPIO lines and edge-wake controllers the scanner
// drives, and lets sources such as desktop key hooks or YAML scripts flip
// switches.
//
// Column levels follow matrix physics: a column reads low when a chain of
// closed switches connects it to a row driven low, so three keys on the
// corners of a rectangle also pull down the fourth (a ghost).
package vmatrix

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
)

// DebounceUnit is the duration of one wake-controller debounce tick.
const DebounceUnit = time.Millisecond

// Matrix is an in-memory switch matrix. It is safe for concurrent use:
// sources flip switches from their own goroutines while the keyboard loop
// reads the lines.
type Matrix struct {
	mu      sync.Mutex
	rows    int
	cols    int
	closed  []uint32
	low     uint32
	pullups bool
	edges   []*EdgeController
}

// New creates a matrix with all switches open and every row in high-Z.
func New(rows, cols int) (*Matrix, error) {
	if rows <= 0 || rows > keymap.MaxLines || cols <= 0 || cols > keymap.MaxLines {
		return nil, fmt.Errorf("vmatrix: invalid size %dx%d", rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, closed: make([]uint32, rows)}, nil
}

// Rows returns the number of output lines.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of input lines.
func (m *Matrix) Cols() int { return m.cols }

// DriveRowLow implements keyscan.GPIO.
func (m *Matrix) DriveRowLow(out int) {
	m.update(func() { m.low |= 1 << uint(out) })
}

// DriveRowHighZ implements keyscan.GPIO.
func (m *Matrix) DriveRowHighZ(out int) {
	m.update(func() { m.low &^= 1 << uint(out) })
}

// SetColumnsInputPullup implements keyscan.GPIO.
func (m *Matrix) SetColumnsInputPullup() {
	m.mu.Lock()
	m.pullups = true
	m.mu.Unlock()
}

// ReadColumns implements keyscan.GPIO.
func (m *Matrix) ReadColumns() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levelsLocked()
}

// levelsLocked returns the column levels, bit set when high.
func (m *Matrix) levelsLocked() uint32 {
	all := uint32(1)<<uint(m.cols) - 1
	// Spread low rows through closed switches until nothing changes.
	rows := m.low
	var cols uint32
	for {
		next := cols
		for r := 0; r < m.rows; r++ {
			if rows&(1<<uint(r)) != 0 {
				next |= m.closed[r]
			}
		}
		nextRows := rows
		for r := 0; r < m.rows; r++ {
			if m.closed[r]&next != 0 {
				nextRows |= 1 << uint(r)
			}
		}
		if next == cols && nextRows == rows {
			break
		}
		cols, rows = next, nextRows
	}
	return all &^ cols
}

// Set opens or closes the switch at (out, in).
func (m *Matrix) Set(out, in int, down bool) error {
	if out < 0 || out >= m.rows || in < 0 || in >= m.cols {
		return fmt.Errorf("vmatrix: switch (%d,%d) outside %dx%d matrix", out, in, m.rows, m.cols)
	}
	m.update(func() {
		if down {
			m.closed[out] |= 1 << uint(in)
		} else {
			m.closed[out] &^= 1 << uint(in)
		}
	})
	return nil
}

// Press closes the switch at (out, in).
func (m *Matrix) Press(out, in int) error { return m.Set(out, in, true) }

// Release opens the switch at (out, in).
func (m *Matrix) Release(out, in int) error { return m.Set(out, in, false) }

// PullupsEnabled reports whether the inputs were configured.
func (m *Matrix) PullupsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pullups
}

// Closed reports whether the switch at (out, in) is closed.
func (m *Matrix) Closed(out, in int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[out]&(1<<uint(in)) != 0
}

// update applies fn under the lock and then lets armed edge controllers
// look at the new levels.
func (m *Matrix) update(fn func()) {
	m.mu.Lock()
	fn()
	levels := m.levelsLocked()
	var fire []*EdgeController
	for _, e := range m.edges {
		if e.checkLocked(levels) {
			fire = append(fire, e)
		}
	}
	m.mu.Unlock()
	for _, e := range fire {
		e.trigger()
	}
}

// EdgeController is a keyscan.WakeController over the matrix inputs. It
// fires its callback once on the first qualifying level after ArmEdge.
type EdgeController struct {
	m    *Matrix
	name string
	fire func()

	// Guarded by m.mu.
	armed    bool
	mask     uint32
	polarity keyscan.Polarity
	debounce uint8
	gen      uint64
	pending  bool
}

var _ keyscan.WakeController = (*EdgeController)(nil)

// NewEdgeController attaches a wake controller that calls fire on an edge.
// fire must not block.
func (m *Matrix) NewEdgeController(name string, fire func()) *EdgeController {
	e := &EdgeController{m: m, name: name, fire: fire}
	m.mu.Lock()
	m.edges = append(m.edges, e)
	m.mu.Unlock()
	return e
}

// ArmEdge implements keyscan.WakeController. A level that already matches
// when arming fires immediately.
func (e *EdgeController) ArmEdge(mask uint32, polarity keyscan.Polarity, debounceTicks uint8) {
	e.m.mu.Lock()
	e.armed = true
	e.mask = mask
	e.polarity = polarity
	e.debounce = debounceTicks
	e.gen++
	e.pending = false
	fire := e.checkLocked(e.m.levelsLocked())
	e.m.mu.Unlock()
	if fire {
		e.trigger()
	}
}

// Disarm implements keyscan.WakeController.
func (e *EdgeController) Disarm() {
	e.m.mu.Lock()
	e.armed = false
	e.gen++
	e.pending = false
	e.m.mu.Unlock()
}

// Armed reports whether the controller waits for an edge.
func (e *EdgeController) Armed() bool {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.armed
}

func (e *EdgeController) matchLocked(levels uint32) bool {
	if e.polarity == keyscan.PolarityLow {
		return ^levels&e.mask != 0
	}
	return levels&e.mask != 0
}

// checkLocked reports whether the controller should fire now. Without
// debounce it disarms itself; with debounce it schedules a recheck.
func (e *EdgeController) checkLocked(levels uint32) bool {
	if !e.armed || e.pending || !e.matchLocked(levels) {
		return false
	}
	if e.debounce == 0 {
		e.armed = false
		return true
	}
	e.pending = true
	gen := e.gen
	time.AfterFunc(time.Duration(e.debounce)*DebounceUnit, func() { e.recheck(gen) })
	return false
}

func (e *EdgeController) recheck(gen uint64) {
	e.m.mu.Lock()
	if e.gen != gen {
		e.m.mu.Unlock()
		return
	}
	e.pending = false
	ok := e.armed && e.matchLocked(e.m.levelsLocked())
	if ok {
		e.armed = false
	}
	e.m.mu.Unlock()
	if ok {
		e.trigger()
	}
}

func (e *EdgeController) trigger() {
	slog.Debug("[MATRIX] edge wake", "controller", e.name)
	if e.fire != nil {
		e.fire()
	}
}
