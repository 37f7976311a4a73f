package timer

import (
	"sync"
	"time"
)

// Host is a Hardware backed by the Go runtime timers. Expired shots are
// delivered on C in firing order.
type Host struct {
	hz uint32

	mu     sync.Mutex
	timers [NumIDs]*time.Timer
	gen    [NumIDs]uint64
	closed bool

	c    chan ID
	done chan struct{}
}

// NewHost creates a host timer bank ticking at hz.
func NewHost(hz uint32) *Host {
	if hz == 0 {
		panic("timer: NewHost called with zero rate")
	}
	return &Host{
		hz:   hz,
		c:    make(chan ID, NumIDs),
		done: make(chan struct{}),
	}
}

// C returns the expiry channel.
func (h *Host) C() <-chan ID { return h.c }

// Start arms a one-shot for id.
func (h *Host) Start(id ID, ticks uint32) {
	d := time.Duration(uint64(ticks) * uint64(time.Second) / uint64(h.hz))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if t := h.timers[id]; t != nil {
		t.Stop()
	}
	h.gen[id]++
	gen := h.gen[id]
	h.timers[id] = time.AfterFunc(d, func() { h.fire(id, gen) })
}

func (h *Host) fire(id ID, gen uint64) {
	h.mu.Lock()
	stale := h.closed || h.gen[id] != gen
	h.mu.Unlock()
	if stale {
		return
	}
	select {
	case h.c <- id:
	case <-h.done:
	}
}

// Stop cancels the shot for id. An expiry already sent on C may still be
// received; Service.Expired ignores it once the timer is cancelled.
func (h *Host) Stop(id ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen[id]++
	if t := h.timers[id]; t != nil {
		t.Stop()
		h.timers[id] = nil
	}
}

// Close stops every timer and unblocks pending deliveries.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, t := range h.timers {
		if t != nil {
			t.Stop()
			h.timers[id] = nil
		}
	}
	close(h.done)
}
