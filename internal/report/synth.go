package report

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
)

// Slots in a normal report.
const (
	modifierByte = 0
	firstKeySlot = 2
)

// SpecialFunc is called for special-function keys.
type SpecialFunc func(code keymap.Keycode, pressed bool)

// Synthesizer converts queued key events into report snapshots. Each
// snapshot starts from the most recently queued report of its kind, or the
// most recently sent one when nothing of that kind is pending.
type Synthesizer struct {
	layout   *keymap.Layout
	queue    *keyscan.EventQueue
	pool     *Pool
	rollover keyscan.RollOverTracker

	current [numKinds][NormalLen]byte
	sent    [numKinds][NormalLen]byte

	onSpecial SpecialFunc
	onResync  func()
	resyncs   int
}

// NewSynthesizer creates a synthesizer reading from queue and writing into
// pool.
func NewSynthesizer(layout *keymap.Layout, queue *keyscan.EventQueue, pool *Pool) *Synthesizer {
	if layout == nil || queue == nil || pool == nil {
		panic("report: NewSynthesizer called with nil collaborator")
	}
	return &Synthesizer{layout: layout, queue: queue, pool: pool}
}

// SetSpecialFunc registers the handler for special-function keys.
func (s *Synthesizer) SetSpecialFunc(fn SpecialFunc) { s.onSpecial = fn }

// SetResyncFunc registers a callback run after an overflow resync or a
// report flush. It must forget the matrix key state.
func (s *Synthesizer) SetResyncFunc(fn func()) { s.onResync = fn }

// Pool returns the report pool.
func (s *Synthesizer) Pool() *Pool { return s.pool }

// Resyncs returns how many overflow resyncs happened.
func (s *Synthesizer) Resyncs() int { return s.resyncs }

// HasQueued reports whether a report is waiting for the transport.
func (s *Synthesizer) HasQueued() bool { return s.pool.PendingLen() > 0 }

// Process converts queued key events while the pool has room for the
// reports they produce, and returns the number of events consumed. Events
// that do not fit stay queued.
func (s *Synthesizer) Process() int {
	if s.queue.Overflowed() {
		s.resync()
	}

	n := 0
	for {
		ev, ok := s.queue.Peek()
		if !ok {
			return n
		}
		code := s.layout.Lookup(ev.Layer(), int(ev.Out), int(ev.In))
		if s.pool.FreeLen() < reportsNeeded(code, ev.Pressed()) {
			slog.Debug("[REPORT] pool exhausted, deferring events", "queued", s.queue.Len())
			return n
		}
		s.queue.Pop()
		s.apply(ev, code)
		n++
	}
}

func reportsNeeded(code keymap.Keycode, pressed bool) int {
	switch code.Class() {
	case keymap.ClassLayer:
		if pressed {
			return numKinds
		}
		return 0
	case keymap.ClassSpecial:
		return 0
	}
	if code == keymap.None {
		return 0
	}
	return 1
}

// resync drops everything in flight and queues one all-released report.
func (s *Synthesizer) resync() {
	s.resyncs++
	slog.Warn("[REPORT] key event queue overflowed, resynchronizing", "resyncs", s.resyncs)

	s.queue.Flush()
	s.pool.Flush()
	s.rollover.Reset()
	extended := s.sent[KindExtended] != [NormalLen]byte{} || s.current[KindExtended] != [NormalLen]byte{}
	s.current = [numKinds][NormalLen]byte{}
	s.enqueue(KindNormal, TransitionRelease, false)
	if extended {
		s.enqueue(KindExtended, TransitionRelease, false)
	}
	if s.onResync != nil {
		s.onResync()
	}
}

func (s *Synthesizer) apply(ev keyscan.KeyEvent, code keymap.Keycode) {
	pressed := ev.Pressed()
	switch code.Class() {
	case keymap.ClassNormal:
		if code == keymap.None {
			return
		}
		if pressed {
			s.pressNormal(ev, code)
		} else {
			s.releaseNormal(ev)
		}

	case keymap.ClassModifier:
		cur := &s.current[KindNormal]
		before := cur[modifierByte]
		if pressed {
			cur[modifierByte] |= code.Payload()
		} else {
			cur[modifierByte] &^= code.Payload()
		}
		if cur[modifierByte] != before {
			s.enqueue(KindNormal, transition(pressed), true)
		}

	case keymap.ClassExtended:
		bit := int(code.Payload())
		if bit >= keymap.ExtendedBits {
			slog.Warn("[REPORT] extended key out of range", "code", code)
			return
		}
		cur := &s.current[KindExtended]
		if pressed {
			cur[bit/8] |= 1 << uint(bit%8)
		} else {
			cur[bit/8] &^= 1 << uint(bit%8)
		}
		s.enqueue(KindExtended, transition(pressed), false)

	case keymap.ClassLayer:
		if pressed {
			s.releaseAll()
		}

	case keymap.ClassSpecial:
		if s.onSpecial != nil {
			s.onSpecial(code, pressed)
		}

	default:
		slog.Warn("[REPORT] unknown key class", "code", code)
	}
}

func (s *Synthesizer) pressNormal(ev keyscan.KeyEvent, code keymap.Keycode) {
	entry := keyscan.RollOverEntry{Fn: ev.Layer(), Out: ev.Out, In: ev.In, Code: code}
	cur := &s.current[KindNormal]

	switch s.rollover.Press(entry) {
	case keyscan.RollOverNone:
		for i := firstKeySlot; i < NormalLen; i++ {
			if cur[i] == 0 {
				cur[i] = code.Payload()
				break
			}
		}
		s.enqueue(KindNormal, TransitionPress, false)
	case keyscan.RollOverEnter:
		slog.Debug("[REPORT] roll-over entered")
		for i := firstKeySlot; i < NormalLen; i++ {
			cur[i] = keymap.ErrorRollOver
		}
		s.enqueue(KindNormal, TransitionPress, false)
	case keyscan.RollOverAbsorb:
	}
}

func (s *Synthesizer) releaseNormal(ev keyscan.KeyEvent) {
	entry, res := s.rollover.Release(ev.Out, ev.In)
	cur := &s.current[KindNormal]

	switch res {
	case keyscan.RollOverNone:
		removeUsage(cur[firstKeySlot:], entry.Code.Payload())
		s.enqueue(KindNormal, TransitionRelease, false)
	case keyscan.RollOverExit:
		slog.Debug("[REPORT] roll-over exited")
		slots := cur[firstKeySlot:]
		clear(slots)
		for i, code := range s.rollover.Sorted() {
			slots[i] = code.Payload()
		}
		s.enqueue(KindNormal, TransitionRelease, false)
	case keyscan.RollOverAbsorb:
	}
}

// removeUsage zeroes the slot holding usage and compacts the remaining
// usages toward the front, keeping their order.
func removeUsage(slots []byte, usage byte) {
	w := 0
	removed := false
	for _, u := range slots {
		if u == 0 {
			continue
		}
		if !removed && u == usage {
			removed = true
			continue
		}
		slots[w] = u
		w++
	}
	clear(slots[w:])
}

// releaseAll forgets every tracked key and queues all-released reports.
func (s *Synthesizer) releaseAll() {
	s.rollover.Reset()
	s.current[KindNormal] = [NormalLen]byte{}
	s.enqueue(KindNormal, TransitionRelease, false)
	if s.current[KindExtended] != [NormalLen]byte{} {
		s.current[KindExtended] = [NormalLen]byte{}
		s.enqueue(KindExtended, TransitionRelease, false)
	}
}

func transition(pressed bool) Transition {
	if pressed {
		return TransitionPress
	}
	return TransitionRelease
}

func (s *Synthesizer) enqueue(kind Kind, tr Transition, modifier bool) {
	h, ok := s.pool.Alloc()
	if !ok {
		// Callers check FreeLen first.
		slog.Error("[REPORT] report pool exhausted", "kind", kind)
		return
	}
	r := s.pool.Report(h)
	r.Kind = kind
	r.Transition = tr
	r.Modifier = modifier
	r.Len = kind.Len()
	copy(r.Data[:], s.current[kind][:r.Len])
	s.pool.Enqueue(h)
}

// DrainOne hands the oldest pending report to t. It reports false without
// error when nothing is pending or the transport has no credit.
func (s *Synthesizer) DrainOne(t Transport) (bool, error) {
	r, ok := s.pool.Front()
	if !ok {
		return false, nil
	}
	if err := t.SendReport(r.Kind, r.Bytes()); err != nil {
		if errors.Is(err, ErrNoCredit) {
			return false, nil
		}
		return false, fmt.Errorf("report: send %s report: %w", r.Kind, err)
	}
	s.sent[r.Kind] = [NormalLen]byte{}
	copy(s.sent[r.Kind][:], r.Bytes())
	s.pool.Release()
	return true, nil
}

// FlushReports discards pending reports together with every tracked key,
// so the roll-over table and the snapshots agree again. Each kind the host
// last saw with keys down gets an all-released report, and the matrix is
// reset so keys still held are reported afresh once debounced.
func (s *Synthesizer) FlushReports() {
	s.pool.Flush()
	s.rollover.Reset()
	s.current = [numKinds][NormalLen]byte{}
	for kind := range Kind(numKinds) {
		if s.sent[kind] != [NormalLen]byte{} {
			s.enqueue(kind, TransitionRelease, false)
		}
	}
	if s.onResync != nil {
		s.onResync()
	}
}

// Reset clears all tracked state, including what the host was last sent.
// Used when the link goes away.
func (s *Synthesizer) Reset() {
	s.pool.Flush()
	s.rollover.Reset()
	s.current = [numKinds][NormalLen]byte{}
	s.sent = [numKinds][NormalLen]byte{}
}

// Current returns the snapshot the next report of kind will start from.
func (s *Synthesizer) Current(kind Kind) []byte {
	b := s.current[kind]
	return b[:kind.Len()]
}
