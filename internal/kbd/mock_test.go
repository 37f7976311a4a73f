package kbd

import (
	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/report"
	"github.com/chaz8081/blekbd/internal/timer"
)

type sentReport struct {
	kind report.Kind
	data []byte
}

type mockTransport struct {
	sent []sentReport
}

func (t *mockTransport) SendReport(kind report.Kind, data []byte) error {
	t.sent = append(t.sent, sentReport{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

type mockLink struct {
	adverts     []conn.AdvParams
	stops       int
	disconnects int
	passkeys    []uint32
}

func (l *mockLink) StartAdvertising(p conn.AdvParams) error {
	l.adverts = append(l.adverts, p)
	return nil
}

func (l *mockLink) StopAdvertising() error {
	l.stops++
	return nil
}

func (l *mockLink) Disconnect() error {
	l.disconnects++
	return nil
}

func (l *mockLink) SubmitPasskey(passkey uint32) error {
	l.passkeys = append(l.passkeys, passkey)
	return nil
}

type mockHosts struct {
	peer    string
	durable bool
	nexts   int
}

func (h *mockHosts) Active() (string, bool) { return h.peer, h.peer != "" && h.durable }

func (h *mockHosts) Remember(peer string, durable bool) error {
	h.peer, h.durable = peer, durable
	return nil
}

func (h *mockHosts) Forget() error {
	h.peer, h.durable = "", false
	return nil
}

func (h *mockHosts) Next() int {
	h.nexts++
	return h.nexts
}

type mockTimerHW struct {
	running map[timer.ID]uint32
}

func (h *mockTimerHW) Start(id timer.ID, ticks uint32) { h.running[id] = ticks }
func (h *mockTimerHW) Stop(id timer.ID)                { delete(h.running, id) }

// manualTicker records whether the scan tick is armed; tests raise ticks
// by hand.
type manualTicker struct {
	armed bool
	ticks uint32
}

func (t *manualTicker) Arm(ticks uint32) {
	t.armed = true
	t.ticks = ticks
}

func (t *manualTicker) Disarm() { t.armed = false }
