package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/report"
)

// ErrNotConnected is returned when a report is sent without a host.
var ErrNotConnected = errors.New("ble: not connected")

// Directed advertising is not available from the peripheral stack. It is
// approximated by fast undirected advertising that only the bonded host is
// expected to answer.

// HID is the keyboard's BLE side. It implements report.Transport for the
// report pool and conn.Link for the connection FSM, and turns stack
// callbacks into connection events.
type HID struct {
	p      Peripheral
	name   string
	notify func(conn.Event)

	mu        sync.Mutex
	keyboard  Notifier
	consumer  Notifier
	connected bool
	peer      string
}

var (
	_ report.Transport = (*HID)(nil)
	_ conn.Link        = (*HID)(nil)
)

// NewHID creates the HID peripheral. notify receives link events and must be
// safe to call from stack goroutines. Panics if p or notify is nil
// (programmer error).
func NewHID(p Peripheral, name string, notify func(conn.Event)) *HID {
	if p == nil || notify == nil {
		panic("ble: NewHID called with nil peripheral or notify")
	}
	return &HID{p: p, name: name, notify: notify}
}

// Start enables the adapter and registers the HID service.
func (h *HID) Start() error {
	if err := h.p.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	kb, cons, err := h.p.AddHIDService(ReportMap())
	if err != nil {
		return fmt.Errorf("ble: add HID service: %w", err)
	}
	h.mu.Lock()
	h.keyboard, h.consumer = kb, cons
	h.mu.Unlock()
	h.p.OnConnect(h.onConnect)
	slog.Info("[BLE] HID service registered", "name", h.name)
	return nil
}

func (h *HID) onConnect(peer string, durable, connected bool) {
	h.mu.Lock()
	was := h.connected
	h.connected = connected
	if connected {
		h.peer = peer
	}
	h.mu.Unlock()

	if connected {
		slog.Info("[BLE] central connected", "peer", peer, "durable", durable)
		h.notify(conn.Event{Kind: conn.ConnectionRequested, Peer: peer})
		h.notify(conn.Event{Kind: conn.ConnectionComplete, Peer: peer, Durable: durable})
		return
	}
	if was {
		slog.Warn("[BLE] central disconnected", "peer", peer)
		h.notify(conn.Ev(conn.Disconnected))
	}
}

// Connected reports whether a central is connected.
func (h *HID) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Peer returns the address of the last connected central.
func (h *HID) Peer() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

// SendReport implements report.Transport. A failed notification means the
// stack has no buffer; the report is retried.
func (h *HID) SendReport(kind report.Kind, data []byte) error {
	h.mu.Lock()
	connected := h.connected
	ch := h.keyboard
	if kind == report.KindExtended {
		ch = h.consumer
	}
	h.mu.Unlock()

	if !connected || ch == nil {
		return ErrNotConnected
	}
	if _, err := ch.Write(data); err != nil {
		slog.Debug("[BLE] notify failed", "kind", kind, "error", err)
		return fmt.Errorf("%w: %w", report.ErrNoCredit, err)
	}
	return nil
}

// StartAdvertising implements conn.Link.
func (h *HID) StartAdvertising(p conn.AdvParams) error {
	slog.Info("[BLE] advertising", "directed", p.Directed, "discoverable", p.Discoverable, "interval", p.Interval, "peer", p.Peer)
	if err := h.p.Advertise(Advertising{LocalName: h.name, Interval: p.Interval, Discoverable: p.Discoverable}); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	return nil
}

// StopAdvertising implements conn.Link.
func (h *HID) StopAdvertising() error {
	if err := h.p.StopAdvertising(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	return nil
}

// Disconnect implements conn.Link.
func (h *HID) Disconnect() error {
	if !h.Connected() {
		return nil
	}
	if err := h.p.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// SubmitPasskey implements conn.Link.
func (h *HID) SubmitPasskey(passkey uint32) error {
	if err := h.p.SubmitPasskey(passkey); err != nil {
		return fmt.Errorf("ble: submit passkey: %w", err)
	}
	return nil
}
