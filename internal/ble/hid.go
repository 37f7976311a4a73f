package ble

import "github.com/chaz8081/blekbd/internal/keymap"

// GATT assigned numbers for HID over GATT.
const (
	ServiceHID                 = 0x1812
	CharHIDInformation         = 0x2A4A
	CharReportMap              = 0x2A4B
	CharHIDControlPoint        = 0x2A4C
	CharReport                 = 0x2A4D
	CharProtocolMode           = 0x2A4E
	protocolModeReport    byte = 0x01
)

// Report IDs declared in the report map.
const (
	ReportIDKeyboard = 1
	ReportIDConsumer = 2
)

// HIDInformation is bcdHID 1.11, no country code, normally connectable.
var HIDInformation = []byte{0x11, 0x01, 0x00, 0x02}

var keyboardDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x85, ReportIDKeyboard, // Report ID
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant) reserved byte
	0x95, 0x05, //   Report Count (5)
	0x75, 0x01, //   Report Size (1)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (Num Lock)
	0x29, 0x05, //   Usage Maximum (Kana)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x03, //   Report Size (3)
	0x91, 0x01, //   Output (Constant) padding
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0xFF, //   Logical Maximum (255)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0xFF, //   Usage Maximum (255)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}

// ReportMap returns the HID report map: the boot keyboard layout under
// report ID 1 and a consumer bitmap under report ID 2, one bit per entry of
// keymap.ConsumerUsages padded to 24 bits.
func ReportMap() []byte {
	m := append([]byte(nil), keyboardDescriptor...)
	m = append(m,
		0x05, 0x0C, // Usage Page (Consumer)
		0x09, 0x01, // Usage (Consumer Control)
		0xA1, 0x01, // Collection (Application)
		0x85, ReportIDConsumer,
		0x15, 0x00, //   Logical Minimum (0)
		0x25, 0x01, //   Logical Maximum (1)
		0x75, 0x01, //   Report Size (1)
		0x95, byte(len(keymap.ConsumerUsages)),
	)
	for _, u := range keymap.ConsumerUsages {
		// Usage with a 16-bit value.
		m = append(m, 0x0A, byte(u), byte(u>>8))
	}
	m = append(m,
		0x81, 0x02, //   Input (Data, Variable, Absolute)
		0x95, byte(keymap.ExtendedBits-len(keymap.ConsumerUsages)),
		0x81, 0x01, //   Input (Constant) padding
		0xC0, // End Collection
	)
	return m
}
