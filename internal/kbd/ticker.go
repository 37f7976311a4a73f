package kbd

import (
	"sync"
	"time"

	"github.com/chaz8081/blekbd/internal/keyscan"
)

// HostTicker is a keyscan.Ticker backed by a runtime ticker. Every period it
// calls fire, normally Interrupts.Tick.
type HostTicker struct {
	hz   uint32
	fire func()

	mu     sync.Mutex
	period time.Duration
	stop   chan struct{}
}

var _ keyscan.Ticker = (*HostTicker)(nil)

// NewHostTicker creates a stopped ticker counting at hz.
func NewHostTicker(hz uint32, fire func()) *HostTicker {
	if hz == 0 || fire == nil {
		panic("kbd: NewHostTicker called with zero rate or nil callback")
	}
	return &HostTicker{hz: hz, fire: fire}
}

// Arm starts ticking every ticks timer ticks. Re-arming with the running
// period keeps the current phase.
func (t *HostTicker) Arm(ticks uint32) {
	if ticks == 0 {
		ticks = 1
	}
	period := time.Duration(uint64(ticks) * uint64(time.Second) / uint64(t.hz))
	if period <= 0 {
		period = time.Nanosecond
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		if t.period == period {
			return
		}
		close(t.stop)
	}
	t.period = period
	t.stop = make(chan struct{})
	go t.loop(period, t.stop)
}

// Disarm stops the ticker.
func (t *HostTicker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Running reports whether the ticker is armed.
func (t *HostTicker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *HostTicker) loop(period time.Duration, stop <-chan struct{}) {
	tk := time.NewTicker(period)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			t.fire()
		}
	}
}
