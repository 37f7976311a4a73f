package kbd

import "github.com/chaz8081/blekbd/internal/keymap"

// PasskeyDigits is the length of a BLE passkey.
const PasskeyDigits = 6

const (
	usageDigit1    = 0x1E
	usageDigit0    = 0x27
	usageEnter     = 0x28
	usageBackspace = 0x2A
)

// passkeyEntry collects the digits typed while the host waits for a passkey.
type passkeyEntry struct {
	value  uint32
	digits int
}

// key feeds one pressed keycode and reports whether Enter submitted a value.
func (p *passkeyEntry) key(code keymap.Keycode) (uint32, bool) {
	if !code.IsNormal() {
		return 0, false
	}
	switch u := code.Payload(); {
	case u >= usageDigit1 && u <= usageDigit0:
		if p.digits == PasskeyDigits {
			return 0, false
		}
		d := uint32(u-usageDigit1) + 1
		if u == usageDigit0 {
			d = 0
		}
		p.value = p.value*10 + d
		p.digits++
	case u == usageBackspace:
		if p.digits > 0 {
			p.value /= 10
			p.digits--
		}
	case u == usageEnter:
		if p.digits == 0 {
			return 0, false
		}
		v := p.value
		p.reset()
		return v, true
	}
	return 0, false
}

func (p *passkeyEntry) reset() { *p = passkeyEntry{} }
