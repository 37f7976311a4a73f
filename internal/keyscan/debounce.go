package keyscan

// SlotState is the debounce phase of a tracked intersection.
type SlotState uint8

// Slot states. An unused slot is the Idle state of the intersection.
const (
	SlotUnused SlotState = iota
	SlotPressDebouncing
	SlotWaitRelease
	SlotReleaseDebouncing
)

func (s SlotState) String() string {
	switch s {
	case SlotUnused:
		return "idle"
	case SlotPressDebouncing:
		return "press-debouncing"
	case SlotWaitRelease:
		return "wait-release"
	case SlotReleaseDebouncing:
		return "release-debouncing"
	default:
		return "unknown"
	}
}

// Verdict tells the caller what to report upward for a sampled bit.
type Verdict uint8

const (
	// VerdictHold keeps the previously reported value of the bit.
	VerdictHold Verdict = iota
	// VerdictPress is a settled press that still has to pass deghosting.
	VerdictPress
	// VerdictRelease is a settled release of a press that was reported.
	VerdictRelease
)

type slot struct {
	key     Intersection
	state   SlotState
	counter uint8
}

// Debouncer filters raw samples through a fixed table of slots. Counters are
// decremented once per full scan cycle by Tick, never per sample.
type Debouncer struct {
	slots        []slot
	pressTicks   uint8
	releaseTicks uint8
	dropped      int
}

// NewDebouncer creates a debouncer with n slots. A zero countdown disables
// filtering on that edge.
func NewDebouncer(n int, pressTicks, releaseTicks uint8) *Debouncer {
	if n <= 0 {
		panic("keyscan: NewDebouncer called with no slots")
	}
	return &Debouncer{
		slots:        make([]slot, n),
		pressTicks:   pressTicks,
		releaseTicks: releaseTicks,
	}
}

// Sample feeds one raw sample for key. reported is the value currently
// reported upward for the bit.
func (d *Debouncer) Sample(key Intersection, pressed, reported bool) Verdict {
	i := d.find(key)
	if i < 0 {
		// A release with no record has nothing to confirm.
		if !pressed || reported {
			return VerdictHold
		}
		if i = d.alloc(); i < 0 {
			d.dropped++
			return VerdictHold
		}
		s := &d.slots[i]
		s.key = key
		if d.pressTicks == 0 {
			s.state = SlotWaitRelease
			return VerdictPress
		}
		s.state = SlotPressDebouncing
		s.counter = d.pressTicks
		return VerdictHold
	}

	s := &d.slots[i]
	switch s.state {
	case SlotPressDebouncing:
		if s.counter > 0 {
			return VerdictHold
		}
		if pressed {
			s.state = SlotWaitRelease
			return VerdictPress
		}
		// Transient: never reported.
		s.state = SlotUnused
		return VerdictHold

	case SlotWaitRelease:
		if !pressed {
			if d.releaseTicks == 0 {
				return d.retire(s, reported)
			}
			s.state = SlotReleaseDebouncing
			s.counter = d.releaseTicks
			return VerdictHold
		}
		if !reported {
			return VerdictPress
		}
		return VerdictHold

	case SlotReleaseDebouncing:
		if s.counter > 0 {
			return VerdictHold
		}
		if pressed {
			// Bounce.
			s.state = SlotWaitRelease
			if !reported {
				return VerdictPress
			}
			return VerdictHold
		}
		return d.retire(s, reported)
	}
	return VerdictHold
}

func (d *Debouncer) retire(s *slot, reported bool) Verdict {
	s.state = SlotUnused
	s.counter = 0
	if reported {
		return VerdictRelease
	}
	return VerdictHold
}

// Tick advances every running countdown by one scan cycle and reports whether
// any slot is still in use.
func (d *Debouncer) Tick() (active bool) {
	for i := range d.slots {
		s := &d.slots[i]
		if s.state == SlotUnused {
			continue
		}
		active = true
		if (s.state == SlotPressDebouncing || s.state == SlotReleaseDebouncing) && s.counter > 0 {
			s.counter--
		}
	}
	return active
}

// RowMask returns the inputs of output out that currently hold a slot.
func (d *Debouncer) RowMask(out int) uint32 {
	var mask uint32
	for _, s := range d.slots {
		if s.state != SlotUnused && int(s.key.Out) == out {
			mask |= 1 << uint(s.key.In)
		}
	}
	return mask
}

// State returns the debounce state of key.
func (d *Debouncer) State(key Intersection) SlotState {
	if i := d.find(key); i >= 0 {
		return d.slots[i].state
	}
	return SlotUnused
}

// InUse returns the number of occupied slots.
func (d *Debouncer) InUse() int {
	n := 0
	for _, s := range d.slots {
		if s.state != SlotUnused {
			n++
		}
	}
	return n
}

// Dropped returns how many candidate presses were lost to a full table.
func (d *Debouncer) Dropped() int { return d.dropped }

// Reset frees every slot.
func (d *Debouncer) Reset() {
	for i := range d.slots {
		d.slots[i] = slot{}
	}
}

func (d *Debouncer) find(key Intersection) int {
	for i, s := range d.slots {
		if s.state != SlotUnused && s.key == key {
			return i
		}
	}
	return -1
}

func (d *Debouncer) alloc() int {
	for i, s := range d.slots {
		if s.state == SlotUnused {
			return i
		}
	}
	return -1
}
