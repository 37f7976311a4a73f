package keyscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/keymap"
)

func mustLayout(t *testing.T, primary, fn [][]string) *keymap.Layout {
	t.Helper()
	l, err := keymap.ParseLayout(primary, fn)
	require.NoError(t, err)
	return l
}

func newTestMatrix(t *testing.T, l *keymap.Layout, press, release uint8, queueCap int) *Matrix {
	t.Helper()
	return NewMatrix(l, NewDebouncer(16, press, release), NewEventQueue(queueCap))
}

// pass feeds one full scan cycle: every row's raw sample, then the
// once-per-cycle debounce tick.
func pass(m *Matrix, raw ...uint32) {
	for out := 0; out < m.layout.Rows(); out++ {
		var r uint32
		if out < len(raw) {
			r = raw[out]
		}
		m.ProcessRow(out, r)
	}
	m.Tick()
}

func drain(q *EventQueue) []KeyEvent {
	var evs []KeyEvent
	for {
		ev, ok := q.Pop()
		if !ok {
			return evs
		}
		evs = append(evs, ev)
	}
}

func grid3x3() [][]string {
	return [][]string{
		{"A", "B", "C"},
		{"D", "E", "F"},
		{"G", "H", "I"},
	}
}

func TestSetBitsMSBFirst(t *testing.T) {
	var got []int
	for pos := range setBits(0b1010_0101) {
		got = append(got, pos)
	}
	assert.Equal(t, []int{7, 5, 2, 0}, got)

	for range setBits(0) {
		t.Fatal("empty mask yielded a bit")
	}
}

func TestDebounceIdempotence(t *testing.T) {
	const window = 6
	// Bounce patterns sampled while the countdown runs; every pattern then
	// settles at the sampled level.
	patterns := map[string][]bool{
		"clean":       {true, true, true, true, true},
		"one bounce":  {false, true, true, true, true},
		"two bounces": {false, true, false, true, true},
		"chatter":     {false, true, false, true, false},
	}
	for name, bounces := range patterns {
		t.Run(name, func(t *testing.T) {
			m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), window, window, 16)
			key := uint32(1 << 1)

			// Press edge.
			pass(m, 0, key)
			for _, down := range bounces {
				pass(m, 0, boolMask(down, key))
			}
			for i := 0; i < 4; i++ {
				pass(m, 0, key)
			}
			// Release edge: the same bounce shape, inverted.
			pass(m, 0, 0)
			for _, down := range bounces {
				pass(m, 0, boolMask(!down, key))
			}
			for i := 0; i < 4; i++ {
				pass(m, 0, 0)
			}

			evs := drain(m.queue)
			require.Len(t, evs, 2)
			assert.True(t, evs[0].Pressed())
			assert.Equal(t, Intersection{Out: 1, In: 1}, evs[0].Key())
			assert.False(t, evs[1].Pressed())
			assert.Equal(t, 0, m.debounce.InUse())
		})
	}
}

func boolMask(down bool, bit uint32) uint32 {
	if down {
		return bit
	}
	return 0
}

func TestDebounceTransientDiscarded(t *testing.T) {
	m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), 3, 3, 16)
	pass(m, 1)
	for i := 0; i < 5; i++ {
		pass(m, 0)
	}
	assert.Empty(t, drain(m.queue))
	assert.Equal(t, 0, m.debounce.InUse())
	assert.Zero(t, m.Status(0))
}

func TestDebounceReleaseBounceReturnsToWaitRelease(t *testing.T) {
	d := NewDebouncer(4, 0, 2)
	k := Intersection{Out: 0, In: 0}

	require.Equal(t, VerdictPress, d.Sample(k, true, false))
	require.Equal(t, SlotWaitRelease, d.State(k))

	assert.Equal(t, VerdictHold, d.Sample(k, false, true))
	assert.Equal(t, SlotReleaseDebouncing, d.State(k))
	d.Tick()
	d.Tick()
	// Counter expired but the key reads pressed again: bounce.
	assert.Equal(t, VerdictHold, d.Sample(k, true, true))
	assert.Equal(t, SlotWaitRelease, d.State(k))
}

func TestDebounceReleaseWithoutRecordIgnored(t *testing.T) {
	d := NewDebouncer(2, 2, 2)
	assert.Equal(t, VerdictHold, d.Sample(Intersection{Out: 1, In: 1}, false, false))
	assert.Equal(t, 0, d.InUse())
}

func TestDebounceTableFullDropsCandidate(t *testing.T) {
	d := NewDebouncer(2, 3, 3)
	a := Intersection{Out: 0, In: 0}
	b := Intersection{Out: 0, In: 1}
	c := Intersection{Out: 0, In: 2}

	d.Sample(a, true, false)
	d.Sample(b, true, false)
	assert.Equal(t, VerdictHold, d.Sample(c, true, false))
	assert.Equal(t, 1, d.Dropped())
	assert.Equal(t, SlotPressDebouncing, d.State(a))
	assert.Equal(t, SlotPressDebouncing, d.State(b))
	assert.Equal(t, SlotUnused, d.State(c))
}

func TestDebounceFilteredPressNeverReleases(t *testing.T) {
	d := NewDebouncer(2, 0, 0)
	k := Intersection{Out: 0, In: 0}
	// Settled press that was rejected upstream (never reported).
	require.Equal(t, VerdictPress, d.Sample(k, true, false))
	assert.Equal(t, VerdictHold, d.Sample(k, false, false))
	assert.Equal(t, SlotUnused, d.State(k))
}

// corners returns the four corners of the rectangle (r1,c1)-(r2,c2).
func corners(r1, c1, r2, c2 int) [4][2]int {
	return [4][2]int{{r1, c1}, {r1, c2}, {r2, c1}, {r2, c2}}
}

func TestDeghostSoundness(t *testing.T) {
	for r1 := 0; r1 < 3; r1++ {
		for r2 := r1 + 1; r2 < 3; r2++ {
			for c1 := 0; c1 < 3; c1++ {
				for c2 := c1 + 1; c2 < 3; c2++ {
					rect := corners(r1, c1, r2, c2)
					for missing := 0; missing < 4; missing++ {
						for last := 0; last < 4; last++ {
							if last == missing {
								continue
							}
							for _, fourthIsKey := range []bool{true, false} {
								checkTriple(t, rect, missing, last, fourthIsKey)
							}
						}
					}
				}
			}
		}
	}
}

func checkTriple(t *testing.T, rect [4][2]int, missing, last int, fourthIsKey bool) {
	t.Helper()
	names := grid3x3()
	if !fourthIsKey {
		names[rect[missing][0]][rect[missing][1]] = ""
	}
	m := newTestMatrix(t, mustLayout(t, names, nil), 0, 0, 16)

	raw := make([]uint32, 3)
	for i, p := range rect {
		if i != missing && i != last {
			raw[p[0]] |= 1 << uint(p[1])
		}
	}
	pass(m, raw...)
	require.Len(t, drain(m.queue), 2)

	lr, lc := rect[last][0], rect[last][1]
	raw[lr] |= 1 << uint(lc)
	pass(m, raw...)

	evs := drain(m.queue)
	if fourthIsKey {
		assert.Empty(t, evs, "rect %v last %v: ghost accepted", rect, rect[last])
		assert.Zero(t, m.Status(lr)&(1<<uint(lc)), "ghost bit left set")
		assert.Equal(t, SlotWaitRelease, m.debounce.State(Intersection{Out: uint8(lr), In: uint8(lc)}))
	} else {
		require.Len(t, evs, 1, "rect %v last %v: genuine press rejected", rect, rect[last])
		assert.Equal(t, Intersection{Out: uint8(lr), In: uint8(lc)}, evs[0].Key())
	}
}

func TestDeghostPendingPressAcceptedWhenCornerReleases(t *testing.T) {
	m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), 0, 0, 16)
	// A (0,0) and B (0,1) held; D (1,0) would complete a rectangle whose
	// fourth corner E (1,1) is a real key.
	pass(m, 0b011)
	require.Len(t, drain(m.queue), 2)
	pass(m, 0b011, 0b001)
	assert.Empty(t, drain(m.queue))
	assert.Zero(t, m.Status(1))

	// B released: D no longer completes a rectangle and is reconsidered.
	pass(m, 0b001, 0b001)
	evs := drain(m.queue)
	require.Len(t, evs, 2)
	assert.False(t, evs[0].Pressed())
	assert.Equal(t, Intersection{Out: 0, In: 1}, evs[0].Key())
	assert.True(t, evs[1].Pressed())
	assert.Equal(t, Intersection{Out: 1, In: 0}, evs[1].Key())
}

func TestDeghostReleasesNeverRejected(t *testing.T) {
	names := grid3x3()
	names[1][0] = ""
	m := newTestMatrix(t, mustLayout(t, names, nil), 0, 0, 16)
	pass(m, 0b011, 0b010)
	require.Len(t, drain(m.queue), 3)
	pass(m, 0, 0)
	evs := drain(m.queue)
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.False(t, ev.Pressed())
	}
}

func TestRollOverTracker(t *testing.T) {
	var tr RollOverTracker
	codes := []keymap.Keycode{0x09, 0x04, 0x07, 0x06, 0x05, 0x08}
	for i, code := range codes {
		assert.Equal(t, RollOverNone, tr.Press(RollOverEntry{Out: 0, In: uint8(i), Code: code}))
	}
	assert.False(t, tr.Phantom())

	assert.Equal(t, RollOverEnter, tr.Press(RollOverEntry{Out: 1, In: 0, Code: 0x0A}))
	assert.True(t, tr.Phantom())
	assert.Equal(t, RollOverLimit+1, tr.Len())

	// Table full: the eighth key is not tracked at all.
	assert.Equal(t, RollOverAbsorb, tr.Press(RollOverEntry{Out: 1, In: 1, Code: 0x0B}))
	_, res := tr.Release(1, 1)
	assert.Equal(t, RollOverAbsorb, res)
	assert.Equal(t, RollOverLimit+1, tr.Len())

	e, res := tr.Release(0, 0)
	assert.Equal(t, RollOverExit, res)
	assert.Equal(t, keymap.Keycode(0x09), e.Code)
	assert.Equal(t, []keymap.Keycode{0x04, 0x05, 0x06, 0x07, 0x08, 0x0A}, tr.Sorted())

	_, res = tr.Release(0, 1)
	assert.Equal(t, RollOverNone, res)
	assert.Equal(t, 5, tr.Len())

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}

func TestEventQueueOverflow(t *testing.T) {
	q := NewEventQueue(2)
	assert.True(t, q.Push(KeyEvent{Flags: FlagPressed, In: 1}))
	assert.True(t, q.Push(KeyEvent{Flags: FlagPressed, In: 2}))
	assert.False(t, q.Push(KeyEvent{Flags: FlagPressed, In: 3}))
	assert.True(t, q.Overflowed())

	// Existing entries are untouched.
	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint8(1), ev.In)
	ev, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint8(2), ev.In)
	_, ok = q.Pop()
	assert.False(t, ok)

	q.Flush()
	assert.False(t, q.Overflowed())
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueWrapsInOrder(t *testing.T) {
	q := NewEventQueue(3)
	for i := 0; i < 10; i++ {
		require.True(t, q.Push(KeyEvent{In: uint8(i)}))
		ev, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, uint8(i), ev.In)
	}
}

func TestMatrixScenarioA(t *testing.T) {
	m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), 4, 4, 16)
	const key = 1 << 2

	// Press with two bounces inside the window.
	for _, raw := range []uint32{key, 0, key, 0, key, key, key} {
		pass(m, raw)
	}
	// Release with two bounces.
	for _, raw := range []uint32{0, key, 0, key, 0, 0, 0} {
		pass(m, raw)
	}

	evs := drain(m.queue)
	require.Len(t, evs, 2)
	assert.True(t, evs[0].Pressed())
	assert.False(t, evs[1].Pressed())
	assert.Equal(t, Intersection{Out: 0, In: 2}, evs[1].Key())
}

func TestMatrixScenarioBSixKeys(t *testing.T) {
	// One key per row and column, so no set of held keys is ambiguous.
	l := mustLayout(t, [][]string{
		{"A", "", "", "", "", ""},
		{"", "B", "", "", "", ""},
		{"", "", "C", "", "", ""},
		{"", "", "", "D", "", ""},
		{"", "", "", "", "E", ""},
		{"", "", "", "", "", "F"},
	}, nil)
	m := newTestMatrix(t, l, 2, 2, 16)
	raw := []uint32{1 << 0, 1 << 1, 1 << 2, 1 << 3, 1 << 4, 1 << 5}
	for i := 0; i < 4; i++ {
		pass(m, raw...)
	}
	evs := drain(m.queue)
	require.Len(t, evs, 6)
	for _, ev := range evs {
		assert.True(t, ev.Pressed())
	}
	assert.Zero(t, m.Ghosts())
}

func TestMatrixFnLatch(t *testing.T) {
	l := mustLayout(t,
		[][]string{{"FN", "A"}},
		[][]string{{"", "VOL_UP"}},
	)
	m := newTestMatrix(t, l, 0, 0, 16)

	pass(m, 0b01) // FN
	pass(m, 0b11) // A on the fn layer
	pass(m, 0b10) // FN released first
	pass(m, 0b00) // A released

	evs := drain(m.queue)
	require.Len(t, evs, 4)
	assert.Equal(t, keymap.LayerPrimary, evs[0].Layer())
	assert.Equal(t, keymap.LayerFn, evs[1].Layer())
	assert.True(t, evs[1].Pressed())
	assert.Equal(t, keymap.LayerPrimary, evs[2].Layer())
	assert.False(t, evs[3].Pressed())
	assert.Equal(t, keymap.LayerFn, evs[3].Layer(), "release must use the layer of the press")
}

func TestMatrixOnPressAndReset(t *testing.T) {
	m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), 0, 0, 16)
	var presses int
	m.SetOnPress(func(KeyEvent) { presses++ })

	pass(m, 0b1)
	assert.Equal(t, 1, presses)
	assert.True(t, m.TakeActivity())
	assert.False(t, m.TakeActivity())
	assert.False(t, m.Quiescent(0))

	m.Reset()
	assert.True(t, m.Quiescent(0))
	// Still held after a reset: detected again as a new press.
	pass(m, 0b1)
	assert.Equal(t, 2, presses)
}

func TestMatrixQueueFullDropsEvents(t *testing.T) {
	m := newTestMatrix(t, mustLayout(t, grid3x3(), nil), 0, 0, 2)
	pass(m, 0b111)
	assert.True(t, m.queue.Overflowed())
	assert.Equal(t, 2, m.queue.Len())
}
