// Package ble exposes the keyboard as a BLE HID-over-GATT peripheral. It
// carries reports to the host and drives advertising for the connection
// lifecycle.
package ble

import "time"

// Notifier is an input report characteristic.
type Notifier interface {
	// Write updates the value and notifies a subscribed host.
	Write(p []byte) (int, error)
}

// Advertising configures one advertising run.
type Advertising struct {
	LocalName string
	Interval  time.Duration
	// Discoverable advertising accepts new hosts; otherwise only bonded
	// hosts are expected to connect.
	Discoverable bool
}

// ConnectHandler is called when a central connects or disconnects. durable
// is set when the central's address is a stable identity.
type ConnectHandler func(peer string, durable, connected bool)

// Peripheral abstracts the BLE peripheral stack for testing.
type Peripheral interface {
	// Enable powers on the adapter.
	Enable() error
	// AddHIDService registers the HID service with the given report map and
	// returns the keyboard and consumer input report characteristics.
	AddHIDService(reportMap []byte) (keyboard, consumer Notifier, err error)
	// Advertise (re)starts advertising.
	Advertise(a Advertising) error
	// StopAdvertising stops advertising. Stopping when idle is a no-op.
	StopAdvertising() error
	// OnConnect registers the connection callback.
	OnConnect(h ConnectHandler)
	// Disconnect drops the current central.
	Disconnect() error
	// SubmitPasskey answers a passkey request from the host.
	SubmitPasskey(passkey uint32) error
}
