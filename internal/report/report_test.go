package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
)

// Row 0 holds the normal keys A..H (usages 0x04..0x0B).
var testGrid = [][]string{
	{"A", "B", "C", "D", "E", "F", "G", "H"},
	{"LCTRL", "LSHIFT", "FN", "VOL_UP", "MUTE", "PAIR", "", ""},
}

type fixture struct {
	queue *keyscan.EventQueue
	pool  *Pool
	synth *Synthesizer
	tr    *mockTransport
}

func newFixture(t *testing.T, queueCap int) *fixture {
	t.Helper()
	l, err := keymap.ParseLayout(testGrid, nil)
	require.NoError(t, err)
	q := keyscan.NewEventQueue(queueCap)
	p := NewPool()
	return &fixture{queue: q, pool: p, synth: NewSynthesizer(l, q, p), tr: &mockTransport{credit: -1}}
}

func (f *fixture) press(out, in uint8) {
	f.queue.Push(keyscan.KeyEvent{Flags: keyscan.FlagPressed, Out: out, In: in})
}

func (f *fixture) release(out, in uint8) {
	f.queue.Push(keyscan.KeyEvent{Out: out, In: in})
}

// pump synthesizes and drains until both the queue and the pool are empty.
func (f *fixture) pump(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		f.synth.Process()
		assertConserved(t, f.pool)
		sent, err := f.synth.DrainOne(f.tr)
		require.NoError(t, err)
		if !sent && f.queue.Len() == 0 && !f.synth.HasQueued() {
			return
		}
	}
	t.Fatal("pump did not settle")
}

func (f *fixture) last(t *testing.T) sentReport {
	t.Helper()
	require.NotEmpty(t, f.tr.sent)
	return f.tr.sent[len(f.tr.sent)-1]
}

func assertConserved(t *testing.T, p *Pool) {
	t.Helper()
	assert.Equal(t, p.Cap(), p.FreeLen()+p.PendingLen(), "free + pending must equal capacity")
}

func normal(mod byte, keys ...byte) []byte {
	b := make([]byte, NormalLen)
	b[0] = mod
	copy(b[2:], keys)
	return b
}

func TestPoolConservationAndFIFO(t *testing.T) {
	p := NewPool()
	assertConserved(t, p)
	assert.Equal(t, PoolSize, p.FreeLen())

	for i := 0; i < PoolSize; i++ {
		h, ok := p.Alloc()
		require.True(t, ok)
		p.Report(h).Data[0] = byte(i)
		p.Report(h).Len = 1
		p.Enqueue(h)
		assertConserved(t, p)
	}
	_, ok := p.Alloc()
	assert.False(t, ok, "pool must be exhausted")

	for i := 0; i < PoolSize; i++ {
		r, ok := p.Front()
		require.True(t, ok)
		assert.Equal(t, byte(i), r.Data[0])
		require.True(t, p.Release())
		assertConserved(t, p)
	}
	_, ok = p.Front()
	assert.False(t, ok)
	assert.False(t, p.Release())
}

func TestPoolHandleMisuse(t *testing.T) {
	p := NewPool()
	assert.Panics(t, func() { p.Enqueue(Handle{}) })

	h, ok := p.Alloc()
	require.True(t, ok)
	p.Enqueue(h)
	assert.Panics(t, func() { p.Enqueue(h) }, "a handle is enqueued once")
	assert.Panics(t, func() { p.Discard(h) })

	h2, ok := p.Alloc()
	require.True(t, ok)
	p.Discard(h2)
	assert.Equal(t, PoolSize-1, p.FreeLen())
	assertConserved(t, p)
}

func TestPoolFlush(t *testing.T) {
	p := NewPool()
	for i := 0; i < 3; i++ {
		h, _ := p.Alloc()
		p.Enqueue(h)
	}
	p.Flush()
	assert.Equal(t, PoolSize, p.FreeLen())
	assert.Zero(t, p.PendingLen())
}

func TestScenarioAPressRelease(t *testing.T) {
	f := newFixture(t, 16)
	f.press(0, 0)
	f.release(0, 0)

	assert.Equal(t, 2, f.synth.Process())
	assert.Equal(t, 2, f.pool.PendingLen())

	f.pump(t)
	require.Len(t, f.tr.sent, 2)
	assert.Equal(t, normal(0, 0x04), f.tr.sent[0].data)
	assert.Equal(t, normal(0), f.tr.sent[1].data)
	assert.Equal(t, KindNormal, f.tr.sent[0].kind)
}

func TestScenarioBSixKeys(t *testing.T) {
	f := newFixture(t, 16)
	for in := uint8(0); in < 6; in++ {
		f.press(0, in)
	}
	f.pump(t)
	require.Len(t, f.tr.sent, 6)
	assert.Equal(t, normal(0, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09), f.last(t).data)
	for _, r := range f.tr.sent {
		assert.NotContains(t, r.data[2:], keymap.ErrorRollOver)
	}
}

func TestScenarioCRollOver(t *testing.T) {
	f := newFixture(t, 16)
	// Held in non-sorted order so the consolidated report must sort.
	for _, in := range []uint8{5, 3, 0, 4, 1, 2} {
		f.press(0, in)
	}
	f.pump(t)
	before := len(f.tr.sent)

	f.press(0, 7)
	f.pump(t)
	require.Len(t, f.tr.sent, before+1, "exactly one roll-over report")
	assert.Equal(t, normal(0, 1, 1, 1, 1, 1, 1), f.last(t).data)

	// An eighth key while in roll-over produces nothing.
	f.press(0, 6)
	f.release(0, 6)
	f.pump(t)
	require.Len(t, f.tr.sent, before+1)

	// Releasing C leaves A B D E F H.
	f.release(0, 2)
	f.pump(t)
	require.Len(t, f.tr.sent, before+2, "exactly one consolidated report")
	assert.Equal(t, normal(0, 0x04, 0x05, 0x07, 0x08, 0x09, 0x0B), f.last(t).data)
}

func TestReleaseCompactsSlots(t *testing.T) {
	f := newFixture(t, 16)
	f.press(0, 0)
	f.press(0, 1)
	f.press(0, 2)
	f.release(0, 1)
	f.pump(t)
	assert.Equal(t, normal(0, 0x04, 0x06), f.last(t).data)
}

func TestModifierReports(t *testing.T) {
	f := newFixture(t, 16)
	f.press(1, 0) // LCTRL
	f.press(1, 1) // LSHIFT
	f.press(0, 0)
	f.release(1, 0)
	f.synth.Process()

	var got [][]byte
	var mods []bool
	for f.synth.HasQueued() {
		r, _ := f.pool.Front()
		got = append(got, append([]byte(nil), r.Bytes()...))
		mods = append(mods, r.Modifier)
		f.pool.Release()
	}
	assert.Equal(t, [][]byte{
		normal(0x01),
		normal(0x03),
		normal(0x03, 0x04),
		normal(0x02, 0x04),
	}, got)
	assert.Equal(t, []bool{true, true, false, true}, mods)
}

func TestExtendedReports(t *testing.T) {
	f := newFixture(t, 16)
	f.press(1, 3) // VOL_UP, bit 1
	f.press(1, 4) // MUTE, bit 0
	f.release(1, 3)
	f.pump(t)

	require.Len(t, f.tr.sent, 3)
	for _, r := range f.tr.sent {
		assert.Equal(t, KindExtended, r.kind)
		assert.Len(t, r.data, ExtendedLen)
	}
	assert.Equal(t, []byte{0x02, 0, 0}, f.tr.sent[0].data)
	assert.Equal(t, []byte{0x03, 0, 0}, f.tr.sent[1].data)
	assert.Equal(t, []byte{0x01, 0, 0}, f.tr.sent[2].data)
}

func TestLayerKeyReleasesEverything(t *testing.T) {
	f := newFixture(t, 16)
	f.press(0, 0)
	f.press(1, 3)
	f.pump(t)
	n := len(f.tr.sent)

	f.press(1, 2) // FN
	f.pump(t)
	require.Len(t, f.tr.sent, n+2)
	assert.Equal(t, normal(0), f.tr.sent[n].data)
	assert.Equal(t, []byte{0, 0, 0}, f.tr.sent[n+1].data)

	// The physical release of A is absorbed.
	f.release(0, 0)
	f.pump(t)
	assert.Len(t, f.tr.sent, n+2)
}

func TestSpecialKeyHook(t *testing.T) {
	f := newFixture(t, 16)
	var got []keymap.Keycode
	f.synth.SetSpecialFunc(func(code keymap.Keycode, pressed bool) {
		if pressed {
			got = append(got, code)
		}
	})
	f.press(1, 5)
	f.release(1, 5)
	f.pump(t)
	assert.Equal(t, []keymap.Keycode{keymap.SpecialPair}, got)
	assert.Empty(t, f.tr.sent)
}

func TestQueueOverflowRecovery(t *testing.T) {
	f := newFixture(t, 4)
	f.press(0, 0)
	f.pump(t)

	for in := uint8(1); in < 7; in++ {
		f.press(0, in)
	}
	require.True(t, f.queue.Overflowed())

	resynced := false
	f.synth.SetResyncFunc(func() { resynced = true })
	f.synth.Process()
	assert.True(t, resynced)
	assert.Equal(t, 0, f.queue.Len())
	assert.False(t, f.queue.Overflowed())
	require.Equal(t, 1, f.pool.PendingLen(), "a single all-released report")
	r, _ := f.pool.Front()
	assert.Equal(t, normal(0), r.Bytes())
	assert.Equal(t, 1, f.synth.Resyncs())
	assertConserved(t, f.pool)
}

func TestPoolExhaustionDefersEvents(t *testing.T) {
	f := newFixture(t, 16)
	for in := uint8(0); in < 7; in++ {
		f.press(0, in)
	}
	assert.Equal(t, PoolSize, f.synth.Process())
	assert.Equal(t, 2, f.queue.Len(), "events stay queued")
	assert.Zero(t, f.pool.FreeLen())

	sent, err := f.synth.DrainOne(f.tr)
	require.NoError(t, err)
	require.True(t, sent)
	assert.Equal(t, 1, f.synth.Process())
	assert.Equal(t, 1, f.queue.Len())
	assertConserved(t, f.pool)
}

func TestDrainNoCredit(t *testing.T) {
	f := newFixture(t, 16)
	f.tr.credit = 0
	f.press(0, 0)
	f.synth.Process()

	sent, err := f.synth.DrainOne(f.tr)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, f.pool.PendingLen(), "head stays queued")

	f.tr.credit = 1
	sent, err = f.synth.DrainOne(f.tr)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Zero(t, f.pool.PendingLen())
}

func TestDrainTransportError(t *testing.T) {
	f := newFixture(t, 16)
	f.tr.err = errors.New("link lost")
	f.press(0, 0)
	f.synth.Process()

	sent, err := f.synth.DrainOne(f.tr)
	assert.False(t, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link lost")
	assert.Equal(t, 1, f.pool.PendingLen())
}

func TestFlushReportsReleasesWhatHostSaw(t *testing.T) {
	f := newFixture(t, 16)
	resets := 0
	f.synth.SetResyncFunc(func() { resets++ })

	f.press(0, 0)
	f.pump(t)
	f.press(0, 1)
	f.synth.Process()
	assert.Equal(t, normal(0, 0x04, 0x05), f.synth.Current(KindNormal))

	f.synth.FlushReports()
	assert.Equal(t, 1, resets, "matrix state is forgotten")
	assert.Zero(t, f.synth.rollover.Len())
	assert.Equal(t, normal(0), f.synth.Current(KindNormal))
	require.Equal(t, 1, f.pool.PendingLen(), "one all-released report for the host")
	assertConserved(t, f.pool)

	f.pump(t)
	assert.Equal(t, normal(0), f.last(t).data)

	f.synth.Reset()
	assert.Equal(t, normal(0), f.synth.Current(KindNormal))
}

func TestFlushReportsNothingSent(t *testing.T) {
	f := newFixture(t, 16)
	f.press(0, 0)
	f.press(1, 3)
	f.synth.Process()
	require.Equal(t, 2, f.pool.PendingLen())

	f.synth.FlushReports()
	assert.Zero(t, f.pool.PendingLen(), "the host never saw a key down")
	assert.Equal(t, []byte{0, 0, 0}, f.synth.Current(KindExtended))
}

func TestFlushReportsKeepsRollOverConsistent(t *testing.T) {
	f := newFixture(t, 16)
	// A is sent, B is only queued when the flush hits.
	f.press(0, 0)
	f.pump(t)
	f.press(0, 1)
	f.synth.Process()
	f.synth.FlushReports()
	f.pump(t)

	// Releases of keys dropped by the flush are absorbed.
	f.release(0, 0)
	f.release(0, 1)
	f.pump(t)
	assert.Equal(t, normal(0), f.last(t).data)

	for in := uint8(2); in < 8; in++ {
		f.press(0, in)
	}
	f.pump(t)
	assert.Equal(t, normal(0, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B), f.last(t).data,
		"six held keys fit the report")
	for _, r := range f.tr.sent {
		assert.NotEqual(t, byte(keymap.ErrorRollOver), r.data[firstKeySlot])
	}
}
