package ble

import (
	"errors"
	"sync"
)

// mockNotifier records notified values.
type mockNotifier struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (n *mockNotifier) Write(data []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	n.writes = append(n.writes, cp)
	return len(data), nil
}

func (n *mockNotifier) all() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.writes...)
}

// mockPeripheral simulates the BLE stack.
type mockPeripheral struct {
	mu          sync.Mutex
	enableErr   error
	addErr      error
	advErr      error
	reportMap   []byte
	keyboard    *mockNotifier
	consumer    *mockNotifier
	adverts     []Advertising
	stops       int
	handler     ConnectHandler
	disconnects int
	passkeys    []uint32
}

func newMockPeripheral() *mockPeripheral {
	return &mockPeripheral{keyboard: &mockNotifier{}, consumer: &mockNotifier{}}
}

func (p *mockPeripheral) Enable() error { return p.enableErr }

func (p *mockPeripheral) AddHIDService(reportMap []byte) (Notifier, Notifier, error) {
	if p.addErr != nil {
		return nil, nil, p.addErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportMap = reportMap
	return p.keyboard, p.consumer, nil
}

func (p *mockPeripheral) Advertise(a Advertising) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advErr != nil {
		return p.advErr
	}
	p.adverts = append(p.adverts, a)
	return nil
}

func (p *mockPeripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *mockPeripheral) OnConnect(h ConnectHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

func (p *mockPeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	return nil
}

func (p *mockPeripheral) SubmitPasskey(passkey uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if passkey > 999999 {
		return errors.New("mock: passkey out of range")
	}
	p.passkeys = append(p.passkeys, passkey)
	return nil
}

// SimulateConnect invokes the registered connect handler.
func (p *mockPeripheral) SimulateConnect(peer string, durable, connected bool) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(peer, durable, connected)
	}
}
