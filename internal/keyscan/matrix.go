package keyscan

import (
	"log/slog"

	"github.com/chaz8081/blekbd/internal/keymap"
)

// Matrix holds the reported key state and turns per-row raw samples into
// queued key events.
type Matrix struct {
	layout   *keymap.Layout
	debounce *Debouncer
	queue    *EventQueue

	// status is the reported (shadow) state per output.
	status []uint32
	// fnLatch marks keys that were pressed on the fn layer.
	fnLatch []uint32
	fnHeld  bool

	activity bool
	ghosts   int

	onPress func(KeyEvent)
}

// NewMatrix wires a layout, a debouncer and the event queue together.
func NewMatrix(layout *keymap.Layout, debounce *Debouncer, queue *EventQueue) *Matrix {
	if layout == nil || debounce == nil || queue == nil {
		panic("keyscan: NewMatrix called with nil collaborator")
	}
	return &Matrix{
		layout:   layout,
		debounce: debounce,
		queue:    queue,
		status:   make([]uint32, layout.Rows()),
		fnLatch:  make([]uint32, layout.Rows()),
	}
}

// SetOnPress registers a callback for every accepted press. It runs on the
// scanning goroutine after the event is queued.
func (m *Matrix) SetOnPress(cb func(KeyEvent)) {
	m.onPress = cb
}

// ProcessRow filters the raw sample of output out. Bit n of raw is set when
// input n reads as pressed.
func (m *Matrix) ProcessRow(out int, raw uint32) {
	raw &= m.layout.ValidMask(out)
	if raw != 0 {
		m.activity = true
	}

	candidates := (raw ^ m.status[out]) | m.debounce.RowMask(out)
	for in := range setBits(candidates) {
		bit := uint32(1) << uint(in)
		key := Intersection{Out: uint8(out), In: uint8(in)}

		switch m.debounce.Sample(key, raw&bit != 0, m.status[out]&bit != 0) {
		case VerdictPress:
			m.status[out] |= bit
			if isGhost(m.status, m.layout, out, in) {
				// Restore so later keys in this pass are not perturbed.
				m.status[out] &^= bit
				m.ghosts++
				slog.Debug("[SCAN] ghost rejected", "out", out, "in", in)
				continue
			}
			m.press(out, in, bit)
		case VerdictRelease:
			m.status[out] &^= bit
			m.release(out, in, bit)
		}
	}
}

func (m *Matrix) press(out, in int, bit uint32) {
	flags := FlagPressed
	if m.fnHeld {
		flags |= FlagFn
		m.fnLatch[out] |= bit
	}
	if m.layout.Lookup(keymap.LayerPrimary, out, in) == keymap.Fn {
		m.fnHeld = true
	}
	ev := KeyEvent{Flags: flags, Out: uint8(out), In: uint8(in)}
	m.push(ev)
	if m.onPress != nil {
		m.onPress(ev)
	}
}

func (m *Matrix) release(out, in int, bit uint32) {
	var flags EventFlags
	if m.fnLatch[out]&bit != 0 {
		flags |= FlagFn
		m.fnLatch[out] &^= bit
	}
	if m.layout.Lookup(keymap.LayerPrimary, out, in) == keymap.Fn {
		m.fnHeld = false
	}
	m.push(KeyEvent{Flags: flags, Out: uint8(out), In: uint8(in)})
}

func (m *Matrix) push(ev KeyEvent) {
	if !m.queue.Push(ev) {
		slog.Warn("[SCAN] key event queue full, dropping event", "out", ev.Out, "in", ev.In, "pressed", ev.Pressed())
	}
}

// Tick runs the once-per-cycle debounce bookkeeping and reports whether any
// intersection is still tracked.
func (m *Matrix) Tick() bool {
	return m.debounce.Tick()
}

// TakeActivity reports whether any key read as pressed since the last call.
func (m *Matrix) TakeActivity() bool {
	a := m.activity
	m.activity = false
	return a
}

// Quiescent reports whether output out has no reported or tracked keys.
func (m *Matrix) Quiescent(out int) bool {
	return m.status[out] == 0 && m.debounce.RowMask(out) == 0
}

// Status returns the reported state of output out.
func (m *Matrix) Status(out int) uint32 { return m.status[out] }

// Ghosts returns how many presses were rejected as ghosts.
func (m *Matrix) Ghosts() int { return m.ghosts }

// Layout returns the matrix layout.
func (m *Matrix) Layout() *keymap.Layout { return m.layout }

// Queue returns the event queue the matrix feeds.
func (m *Matrix) Queue() *EventQueue { return m.queue }

// Debouncer returns the slot table.
func (m *Matrix) Debouncer() *Debouncer { return m.debounce }

// Reset drops all transient state: reported bits, debounce slots and the fn
// latch. Keys still held are detected again as new presses.
func (m *Matrix) Reset() {
	for i := range m.status {
		m.status[i] = 0
		m.fnLatch[i] = 0
	}
	m.fnHeld = false
	m.activity = false
	m.debounce.Reset()
}
