package bond

import (
	"errors"
	"log/slog"

	"github.com/chaz8081/blekbd/internal/conn"
)

// Hosts exposes a Store as the connection FSM's host slots.
type Hosts struct {
	store  *Store
	active int
}

var _ conn.HostStore = (*Hosts)(nil)

// NewHosts creates a host slot view starting at the persisted selection.
// Panics if store is nil (programmer error).
func NewHosts(store *Store) *Hosts {
	if store == nil {
		panic("bond: NewHosts called with nil store")
	}
	return &Hosts{store: store, active: store.ActiveSlot()}
}

// Slot returns the selected slot.
func (h *Hosts) Slot() int { return h.active }

// Active implements conn.HostStore.
func (h *Hosts) Active() (string, bool) {
	r, err := h.store.Load(BySlot(h.active))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("[BOND] reading active slot failed", "slot", h.active, "error", err)
		}
		return "", false
	}
	return r.Peer, r.Durable
}

// Remember implements conn.HostStore. A host lives in one slot only, so a
// copy of it in another slot is erased.
func (h *Hosts) Remember(peer string, durable bool) error {
	if old, err := h.store.Load(ByPeer(peer)); err == nil && old.Slot != h.active {
		if err := h.store.Clear(old.Slot); err != nil {
			return err
		}
	}
	return h.store.Store(Record{Slot: h.active, Peer: peer, Durable: durable})
}

// Forget implements conn.HostStore.
func (h *Hosts) Forget() error { return h.store.Clear(h.active) }

// Next implements conn.HostStore.
func (h *Hosts) Next() int {
	h.active = (h.active + 1) % h.store.Slots()
	if err := h.store.SetActiveSlot(h.active); err != nil {
		slog.Warn("[BOND] persisting slot selection failed", "slot", h.active, "error", err)
	}
	return h.active
}
