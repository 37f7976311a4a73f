package report

// PoolSize is the number of report buffers.
const PoolSize = 5

const nilIndex int8 = -1

type owner uint8

const (
	ownerFree owner = iota
	ownerHeld
	ownerPending
)

// Handle refers to a report buffer taken from the free list. It can be
// enqueued or discarded exactly once. The zero Handle is invalid.
type Handle struct {
	// idx is the node index plus one.
	idx int8
}

type node struct {
	rep   Report
	next  int8
	owner owner
}

type indexList struct {
	head, tail int8
	n          int
}

// Pool is an arena of report buffers linked into a free list and a FIFO
// pending list by index. Every buffer belongs to exactly one list except
// between Alloc and Enqueue/Discard.
type Pool struct {
	nodes   [PoolSize]node
	free    indexList
	pending indexList
}

// NewPool returns a pool with every buffer on the free list.
func NewPool() *Pool {
	p := &Pool{}
	p.Flush()
	return p
}

func (p *Pool) push(l *indexList, i int8, o owner) {
	p.nodes[i].next = nilIndex
	p.nodes[i].owner = o
	if l.n == 0 {
		l.head = i
	} else {
		p.nodes[l.tail].next = i
	}
	l.tail = i
	l.n++
}

func (p *Pool) pop(l *indexList) int8 {
	if l.n == 0 {
		return nilIndex
	}
	i := l.head
	l.head = p.nodes[i].next
	l.n--
	if l.n == 0 {
		l.head, l.tail = nilIndex, nilIndex
	}
	p.nodes[i].next = nilIndex
	return i
}

// Alloc takes a buffer from the free list. The buffer is zeroed.
func (p *Pool) Alloc() (Handle, bool) {
	i := p.pop(&p.free)
	if i == nilIndex {
		return Handle{}, false
	}
	p.nodes[i].owner = ownerHeld
	p.nodes[i].rep = Report{}
	return Handle{idx: i + 1}, true
}

func (p *Pool) held(h Handle) int8 {
	i := h.idx - 1
	if i < 0 || int(i) >= PoolSize || p.nodes[i].owner != ownerHeld {
		panic("report: handle is not held")
	}
	return i
}

// Report returns the buffer behind a held handle for filling in.
func (p *Pool) Report(h Handle) *Report {
	return &p.nodes[p.held(h)].rep
}

// Enqueue appends a held buffer to the tail of the pending list.
func (p *Pool) Enqueue(h Handle) {
	p.push(&p.pending, p.held(h), ownerPending)
}

// Discard returns a held buffer to the free list unsent.
func (p *Pool) Discard(h Handle) {
	p.push(&p.free, p.held(h), ownerFree)
}

// Front returns the oldest pending report.
func (p *Pool) Front() (*Report, bool) {
	if p.pending.n == 0 {
		return nil, false
	}
	return &p.nodes[p.pending.head].rep, true
}

// Release moves the oldest pending report back to the free list.
func (p *Pool) Release() bool {
	i := p.pop(&p.pending)
	if i == nilIndex {
		return false
	}
	p.push(&p.free, i, ownerFree)
	return true
}

// Flush returns every buffer to the free list.
func (p *Pool) Flush() {
	p.free = indexList{head: nilIndex, tail: nilIndex}
	p.pending = indexList{head: nilIndex, tail: nilIndex}
	for i := range p.nodes {
		p.nodes[i] = node{}
		p.push(&p.free, int8(i), ownerFree)
	}
}

// FreeLen returns the number of free buffers.
func (p *Pool) FreeLen() int { return p.free.n }

// PendingLen returns the number of queued reports.
func (p *Pool) PendingLen() int { return p.pending.n }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return PoolSize }
