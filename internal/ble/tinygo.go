package ble

import (
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/blekbd/internal/report"
)

// TinygoPeripheral implements Peripheral with tinygo-org/bluetooth.
type TinygoPeripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	keyboard bluetooth.Characteristic
	consumer bluetooth.Characteristic

	mu          sync.Mutex
	central     bluetooth.Device
	connected   bool
	advertising bool
}

// NewTinygoPeripheral creates a peripheral on the default adapter.
func NewTinygoPeripheral() *TinygoPeripheral {
	return &TinygoPeripheral{adapter: bluetooth.DefaultAdapter}
}

var _ Peripheral = (*TinygoPeripheral)(nil)

func (p *TinygoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return err
	}
	p.adv = p.adapter.DefaultAdvertisement()
	return nil
}

func (p *TinygoPeripheral) AddHIDService(reportMap []byte) (Notifier, Notifier, error) {
	err := p.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.New16BitUUID(ServiceHID),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  bluetooth.New16BitUUID(CharHIDInformation),
				Value: HIDInformation,
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  bluetooth.New16BitUUID(CharReportMap),
				Value: reportMap,
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  bluetooth.New16BitUUID(CharProtocolMode),
				Value: []byte{protocolModeReport},
				Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
			},
			{
				UUID:  bluetooth.New16BitUUID(CharHIDControlPoint),
				Value: []byte{0},
				Flags: bluetooth.CharacteristicWriteWithoutResponsePermission,
			},
			{
				Handle: &p.keyboard,
				UUID:   bluetooth.New16BitUUID(CharReport),
				Value:  make([]byte, report.NormalLen),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &p.consumer,
				UUID:   bluetooth.New16BitUUID(CharReport),
				Value:  make([]byte, report.ExtendedLen),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return &p.keyboard, &p.consumer, nil
}

func (p *TinygoPeripheral) Advertise(a Advertising) error {
	if p.adv == nil {
		return errors.New("ble: adapter not enabled")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advertising {
		if err := p.adv.Stop(); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
		p.advertising = false
	}
	err := p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    a.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.New16BitUUID(ServiceHID)},
		Interval:     bluetooth.NewDuration(a.Interval),
	})
	if err != nil {
		return err
	}
	if err := p.adv.Start(); err != nil {
		return err
	}
	p.advertising = true
	return nil
}

func (p *TinygoPeripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.advertising || p.adv == nil {
		return nil
	}
	p.advertising = false
	return p.adv.Stop()
}

func (p *TinygoPeripheral) OnConnect(h ConnectHandler) {
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.mu.Lock()
		p.connected = connected
		if connected {
			p.central = device
			// The stack stops advertising once a central connects.
			p.advertising = false
		}
		p.mu.Unlock()
		// Bonded centrals are reached through their identity address, so
		// any address the stack reports is treated as durable.
		h(device.Address.String(), true, connected)
	})
}

func (p *TinygoPeripheral) Disconnect() error {
	p.mu.Lock()
	central, connected := p.central, p.connected
	p.mu.Unlock()
	if !connected {
		return nil
	}
	return central.Disconnect()
}

// SubmitPasskey is not supported: the stack owns pairing and shows or
// accepts the passkey itself.
func (p *TinygoPeripheral) SubmitPasskey(uint32) error {
	return errors.ErrUnsupported
}
