// Package timer provides the named one-shot timers used by the connection
// lifecycle. Durations longer than the hardware can count in one shot are
// chained: the first shot covers the remainder and a saved count of full
// shots re-arms the hardware until it is exhausted.
package timer

import (
	"fmt"
	"time"
)

// ID names a timer.
type ID uint8

// Timers.
const (
	Advertising ID = iota
	Discoverability
	Pairing
	Inactivity

	NumIDs
)

func (id ID) String() string {
	switch id {
	case Advertising:
		return "advertising"
	case Discoverability:
		return "discoverability"
	case Pairing:
		return "pairing"
	case Inactivity:
		return "inactivity"
	default:
		return fmt.Sprintf("timer(%d)", uint8(id))
	}
}

// Hardware is a bank of one-shot counters. Start replaces a running shot
// for the same id. Expiries are reported back through Service.Expired.
type Hardware interface {
	Start(id ID, ticks uint32)
	Stop(id ID)
}

type slot struct {
	armed bool
	// shots is the number of full-length shots still to run after the
	// current one.
	shots uint64
}

// Service arms and cancels named timers on top of Hardware.
type Service struct {
	hw       Hardware
	hz       uint32
	maxTicks uint32
	slots    [NumIDs]slot
}

// NewService creates a timer service. hz is the hardware tick rate and
// maxTicks the longest single shot it supports.
func NewService(hw Hardware, hz, maxTicks uint32) *Service {
	if hw == nil {
		panic("timer: NewService called with nil hardware")
	}
	if hz == 0 || maxTicks == 0 {
		panic("timer: NewService called with zero rate or range")
	}
	return &Service{hw: hw, hz: hz, maxTicks: maxTicks}
}

// Ticks converts d to hardware ticks, rounding up.
func (s *Service) Ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return (uint64(d)*uint64(s.hz) + uint64(time.Second) - 1) / uint64(time.Second)
}

// Arm starts (or restarts) timer id for d. A non-positive duration cancels
// the timer.
func (s *Service) Arm(id ID, d time.Duration) {
	s.ArmTicks(id, s.Ticks(d))
}

// ArmTicks starts (or restarts) timer id for the given number of ticks.
func (s *Service) ArmTicks(id ID, ticks uint64) {
	if ticks == 0 {
		s.Cancel(id)
		return
	}
	max := uint64(s.maxTicks)
	first := ticks % max
	shots := ticks / max
	if first == 0 {
		first = max
		shots--
	}
	s.slots[id] = slot{armed: true, shots: shots}
	s.hw.Start(id, uint32(first))
}

// Cancel stops timer id. Cancelling an idle timer is a no-op.
func (s *Service) Cancel(id ID) {
	if !s.slots[id].armed {
		return
	}
	s.slots[id] = slot{}
	s.hw.Stop(id)
}

// CancelAll stops every timer.
func (s *Service) CancelAll() {
	for id := ID(0); id < NumIDs; id++ {
		s.Cancel(id)
	}
}

// Armed reports whether timer id is running.
func (s *Service) Armed(id ID) bool { return s.slots[id].armed }

// Expired handles a hardware shot expiry for id. It re-arms the hardware
// while chained shots remain and reports true only when the full duration
// has elapsed. Expiries of cancelled timers are ignored.
func (s *Service) Expired(id ID) bool {
	sl := &s.slots[id]
	if !sl.armed {
		return false
	}
	if sl.shots > 0 {
		sl.shots--
		s.hw.Start(id, s.maxTicks)
		return false
	}
	sl.armed = false
	return true
}
