package keyscan

import "fmt"

// mockGPIO is an in-memory switch matrix. A column reads low when a pressed
// switch connects it to a row that is driven low.
type mockGPIO struct {
	rows, cols int
	pressed    [][]bool
	low        []bool
	pullups    int
	calls      []string
}

func newMockGPIO(rows, cols int) *mockGPIO {
	g := &mockGPIO{rows: rows, cols: cols, pressed: make([][]bool, rows), low: make([]bool, rows)}
	for r := range g.pressed {
		g.pressed[r] = make([]bool, cols)
	}
	return g
}

func (g *mockGPIO) set(out, in int, down bool) { g.pressed[out][in] = down }

func (g *mockGPIO) DriveRowLow(out int) {
	g.low[out] = true
	g.calls = append(g.calls, fmt.Sprintf("low(%d)", out))
}

func (g *mockGPIO) DriveRowHighZ(out int) {
	g.low[out] = false
	g.calls = append(g.calls, fmt.Sprintf("hiz(%d)", out))
}

func (g *mockGPIO) SetColumnsInputPullup() { g.pullups++ }

func (g *mockGPIO) ReadColumns() uint32 {
	g.calls = append(g.calls, "read")
	levels := lineMask(g.cols)
	for r := 0; r < g.rows; r++ {
		if !g.low[r] {
			continue
		}
		for c := 0; c < g.cols; c++ {
			if g.pressed[r][c] {
				levels &^= 1 << uint(c)
			}
		}
	}
	return levels
}

func (g *mockGPIO) resetCalls() { g.calls = nil }

type mockTicker struct {
	armed bool
	ticks uint32
	arms  int
}

func (t *mockTicker) Arm(ticks uint32) {
	t.armed = true
	t.ticks = ticks
	t.arms++
}

func (t *mockTicker) Disarm() { t.armed = false }

type mockWake struct {
	armed    bool
	mask     uint32
	polarity Polarity
	debounce uint8
	arms     int
}

func (w *mockWake) ArmEdge(mask uint32, polarity Polarity, debounceTicks uint8) {
	w.armed = true
	w.mask = mask
	w.polarity = polarity
	w.debounce = debounceTicks
	w.arms++
}

func (w *mockWake) Disarm() { w.armed = false }

type mockSink struct {
	calls int
	queue *EventQueue
	seen  []KeyEvent
}

func (s *mockSink) Process() int {
	s.calls++
	n := 0
	for {
		ev, ok := s.queue.Pop()
		if !ok {
			return n
		}
		s.seen = append(s.seen, ev)
		n++
	}
}
