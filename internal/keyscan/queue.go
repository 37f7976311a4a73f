package keyscan

// EventQueue is a fixed-capacity FIFO of key events. When full, new events
// are dropped and the overflow flag is raised; queued events are never
// overwritten.
type EventQueue struct {
	buf      []KeyEvent
	head     int
	n        int
	overflow bool
}

// NewEventQueue creates a queue holding up to capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		panic("keyscan: NewEventQueue called with non-positive capacity")
	}
	return &EventQueue{buf: make([]KeyEvent, capacity)}
}

// Push appends ev. It returns false and raises the overflow flag when full.
func (q *EventQueue) Push(ev KeyEvent) bool {
	if q.n == len(q.buf) {
		q.overflow = true
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = ev
	q.n++
	return true
}

// Peek returns the oldest event without removing it.
func (q *EventQueue) Peek() (KeyEvent, bool) {
	if q.n == 0 {
		return KeyEvent{}, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest event.
func (q *EventQueue) Pop() (KeyEvent, bool) {
	ev, ok := q.Peek()
	if !ok {
		return ev, false
	}
	q.buf[q.head] = KeyEvent{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return ev, true
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return q.n }

// Cap returns the queue capacity.
func (q *EventQueue) Cap() int { return len(q.buf) }

// Overflowed reports whether an event was dropped since the last Flush.
func (q *EventQueue) Overflowed() bool { return q.overflow }

// Flush discards all events and clears the overflow flag.
func (q *EventQueue) Flush() {
	for i := range q.buf {
		q.buf[i] = KeyEvent{}
	}
	q.head = 0
	q.n = 0
	q.overflow = false
}
