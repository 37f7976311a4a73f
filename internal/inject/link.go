package inject

import (
	"context"
	"log/slog"
	"time"

	"github.com/chaz8081/blekbd/internal/conn"
)

// LoopbackPeer is the host address reported by LocalLink.
const LoopbackPeer = "loopback"

// LocalLink is a conn.Link for transports without a radio. A local host
// answers every advertisement, so the keyboard connects as soon as it
// starts advertising.
type LocalLink struct {
	notify func(conn.Event)
	// Delay is how long the local host takes to answer an advertisement.
	Delay time.Duration

	events chan []conn.Event
}

var _ conn.Link = (*LocalLink)(nil)

// linkBacklog bounds the event batches waiting for Run.
const linkBacklog = 8

// NewLocalLink creates a LocalLink delivering events to notify. Panics if
// notify is nil (programmer error).
func NewLocalLink(notify func(conn.Event)) *LocalLink {
	if notify == nil {
		panic("inject: NewLocalLink called with nil notify")
	}
	return &LocalLink{notify: notify, events: make(chan []conn.Event, linkBacklog)}
}

// Run delivers link events in order until ctx is cancelled. Events are
// delivered from Run's goroutine so the keyboard loop never blocks on
// itself.
func (l *LocalLink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-l.events:
			if l.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.Delay):
				}
			}
			for _, ev := range batch {
				l.notify(ev)
			}
		}
	}
}

func (l *LocalLink) emit(evs ...conn.Event) {
	select {
	case l.events <- evs:
	default:
		slog.Warn("[INJECT] link backlog full, dropping events", "first", evs[0].Kind)
	}
}

// StartAdvertising implements conn.Link.
func (l *LocalLink) StartAdvertising(p conn.AdvParams) error {
	slog.Debug("[INJECT] advertising", "directed", p.Directed, "discoverable", p.Discoverable)
	l.emit(
		conn.Event{Kind: conn.ConnectionRequested, Peer: LoopbackPeer},
		conn.Event{Kind: conn.ConnectionComplete, Peer: LoopbackPeer, Durable: true},
	)
	return nil
}

// StopAdvertising implements conn.Link.
func (l *LocalLink) StopAdvertising() error { return nil }

// Disconnect implements conn.Link.
func (l *LocalLink) Disconnect() error {
	l.emit(conn.Ev(conn.Disconnected))
	return nil
}

// SubmitPasskey implements conn.Link.
func (l *LocalLink) SubmitPasskey(passkey uint32) error {
	slog.Info("[INJECT] passkey entered", "passkey", passkey)
	return nil
}
