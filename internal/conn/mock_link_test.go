package conn

import "github.com/chaz8081/blekbd/internal/timer"

type mockLink struct {
	adverts     []AdvParams
	stops       int
	disconnects int
	passkeys    []uint32
	advErr      error
}

func (l *mockLink) StartAdvertising(p AdvParams) error {
	l.adverts = append(l.adverts, p)
	return l.advErr
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

func (l *mockLink) lastAdvert() AdvParams {
	if len(l.adverts) == 0 {
		return AdvParams{}
	}
	return l.adverts[len(l.adverts)-1]
}

type hostSlot struct {
	peer    string
	durable bool
}

type mockHosts struct {
	slots  []hostSlot
	active int
}

func newMockHosts(n int) *mockHosts { return &mockHosts{slots: make([]hostSlot, n)} }

func (h *mockHosts) Active() (string, bool) {
	s := h.slots[h.active]
	return s.peer, s.peer != "" && s.durable
}

func (h *mockHosts) Remember(peer string, durable bool) error {
	h.slots[h.active] = hostSlot{peer: peer, durable: durable}
	return nil
}

func (h *mockHosts) Forget() error {
	h.slots[h.active] = hostSlot{}
	return nil
}

func (h *mockHosts) Next() int {
	h.active = (h.active + 1) % len(h.slots)
	return h.active
}

type mockActions struct {
	flushes   int
	resets    int
	passkey   bool
	suspended bool
}

func (a *mockActions) Flush()                 { a.flushes++ }
func (a *mockActions) ResetSession()          { a.resets++ }
func (a *mockActions) SetPasskeyMode(on bool) { a.passkey = on }
func (a *mockActions) SuspendScanning(s bool) { a.suspended = s }

type mockTimerHW struct {
	running map[timer.ID]uint32
}

func newMockTimerHW() *mockTimerHW { return &mockTimerHW{running: map[timer.ID]uint32{}} }

func (h *mockTimerHW) Start(id timer.ID, ticks uint32) { h.running[id] = ticks }
func (h *mockTimerHW) Stop(id timer.ID)                { delete(h.running, id) }
