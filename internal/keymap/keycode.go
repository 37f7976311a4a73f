// Package keymap defines the keycode vocabulary shared by the scanner and the
// report synthesizer, and the two-layer matrix layout that maps intersections
// to keycodes.
//
// A keycode is 16 bits. The top nibble selects the key class, the low byte
// carries the class payload:
//
//	0x0000        no key
//	0x00uu        normal key, HID keyboard usage uu
//	0x10mm        modifier, mm = bit mask in byte 0 of the keyboard report
//	0x20bb        extended (consumer) key, bb = bit index into the 24-bit bitmap
//	0x3000        layer (fn) key
//	0x40ff        special function ff
//
// These values are persisted in user layouts and must not change.
package keymap

import "fmt"

// Keycode is a class-tagged key identifier.
type Keycode uint16

// Key classes (top nibble of a Keycode).
const (
	ClassMask     Keycode = 0xF000
	ClassNormal   Keycode = 0x0000
	ClassModifier Keycode = 0x1000
	ClassExtended Keycode = 0x2000
	ClassLayer    Keycode = 0x3000
	ClassSpecial  Keycode = 0x4000
)

// None marks an intersection without a switch.
const None Keycode = 0

// Fn is the layer key.
const Fn Keycode = ClassLayer

// ErrorRollOver is the HID usage reported in every slot on phantom state.
const ErrorRollOver uint8 = 0x01

// ExtendedBits is the width of the consumer bitmap.
const ExtendedBits = 24

// Special functions.
const (
	SpecialPair       Keycode = ClassSpecial | 0x01
	SpecialHostSwitch Keycode = ClassSpecial | 0x02
	SpecialNewHost    Keycode = ClassSpecial | 0x03
)

// Modifier returns the modifier keycode for the given report bit mask.
func Modifier(mask uint8) Keycode { return ClassModifier | Keycode(mask) }

// Extended returns the extended keycode for the given bitmap position.
func Extended(bit uint8) Keycode { return ClassExtended | Keycode(bit) }

// Class returns the key class of k.
func (k Keycode) Class() Keycode { return k & ClassMask }

// Payload returns the class-specific low byte.
func (k Keycode) Payload() uint8 { return uint8(k) }

// IsNormal reports whether k is a non-empty normal key.
func (k Keycode) IsNormal() bool { return k != None && k.Class() == ClassNormal }

// String returns the configured name of k, or its hex form.
func (k Keycode) String() string {
	if name, ok := namesByCode[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(k))
}
