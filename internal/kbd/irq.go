package kbd

import "sync/atomic"

// Interrupts collects wake sources raised outside the keyboard loop. Each
// source sets a sticky flag and kicks the loop; repeated raises before the
// loop runs coalesce into one.
type Interrupts struct {
	tick atomic.Bool
	edge atomic.Bool
	wake atomic.Bool

	notify chan struct{}
}

// NewInterrupts creates an empty interrupt set.
func NewInterrupts() *Interrupts {
	return &Interrupts{notify: make(chan struct{}, 1)}
}

// Tick raises the scan tick.
func (i *Interrupts) Tick() { i.raise(&i.tick) }

// Edge raises the matrix edge interrupt.
func (i *Interrupts) Edge() { i.raise(&i.edge) }

// Wake raises the deep-sleep wake interrupt.
func (i *Interrupts) Wake() { i.raise(&i.wake) }

// C is signalled whenever a flag is raised.
func (i *Interrupts) C() <-chan struct{} { return i.notify }

func (i *Interrupts) raise(f *atomic.Bool) {
	f.Store(true)
	select {
	case i.notify <- struct{}{}:
	default:
	}
}

func (i *Interrupts) takeTick() bool { return i.tick.Swap(false) }
func (i *Interrupts) takeEdge() bool { return i.edge.Swap(false) }
func (i *Interrupts) takeWake() bool { return i.wake.Swap(false) }
