package keymap

import (
	"fmt"
	"strings"
)

// Modifier report bits.
const (
	ModLeftCtrl   uint8 = 1 << 0
	ModLeftShift  uint8 = 1 << 1
	ModLeftAlt    uint8 = 1 << 2
	ModLeftGUI    uint8 = 1 << 3
	ModRightCtrl  uint8 = 1 << 4
	ModRightShift uint8 = 1 << 5
	ModRightAlt   uint8 = 1 << 6
	ModRightGUI   uint8 = 1 << 7
)

// ConsumerUsages lists the HID consumer page usage for each extended bit, in
// bit order. The BLE report map declares the same order.
var ConsumerUsages = [16]uint16{
	0x00E2, // MUTE
	0x00E9, // VOL_UP
	0x00EA, // VOL_DOWN
	0x00CD, // PLAY_PAUSE
	0x00B5, // NEXT_TRACK
	0x00B6, // PREV_TRACK
	0x00B7, // STOP
	0x00B8, // EJECT
	0x006F, // BRIGHTNESS_UP
	0x0070, // BRIGHTNESS_DOWN
	0x0223, // WWW_HOME
	0x0221, // SEARCH
	0x018A, // MAIL
	0x0192, // CALCULATOR
	0x0224, // WWW_BACK
	0x0225, // WWW_FORWARD
}

var codesByName = map[string]Keycode{
	"NONE": None,
	"___":  None,

	"ENTER":       0x28,
	"ESC":         0x29,
	"BACKSPACE":   0x2A,
	"TAB":         0x2B,
	"SPACE":       0x2C,
	"MINUS":       0x2D,
	"EQUAL":       0x2E,
	"LBRACKET":    0x2F,
	"RBRACKET":    0x30,
	"BACKSLASH":   0x31,
	"SEMICOLON":   0x33,
	"QUOTE":       0x34,
	"GRAVE":       0x35,
	"COMMA":       0x36,
	"DOT":         0x37,
	"SLASH":       0x38,
	"CAPSLOCK":    0x39,
	"PRINTSCREEN": 0x46,
	"SCROLLLOCK":  0x47,
	"PAUSE":       0x48,
	"INSERT":      0x49,
	"HOME":        0x4A,
	"PAGEUP":      0x4B,
	"DELETE":      0x4C,
	"END":         0x4D,
	"PAGEDOWN":    0x4E,
	"RIGHT":       0x4F,
	"LEFT":        0x50,
	"DOWN":        0x51,
	"UP":          0x52,
	"APPLICATION": 0x65,

	"LCTRL":  Modifier(ModLeftCtrl),
	"LSHIFT": Modifier(ModLeftShift),
	"LALT":   Modifier(ModLeftAlt),
	"LGUI":   Modifier(ModLeftGUI),
	"RCTRL":  Modifier(ModRightCtrl),
	"RSHIFT": Modifier(ModRightShift),
	"RALT":   Modifier(ModRightAlt),
	"RGUI":   Modifier(ModRightGUI),

	"MUTE":            Extended(0),
	"VOL_UP":          Extended(1),
	"VOL_DOWN":        Extended(2),
	"PLAY_PAUSE":      Extended(3),
	"NEXT_TRACK":      Extended(4),
	"PREV_TRACK":      Extended(5),
	"STOP":            Extended(6),
	"EJECT":           Extended(7),
	"BRIGHTNESS_UP":   Extended(8),
	"BRIGHTNESS_DOWN": Extended(9),
	"WWW_HOME":        Extended(10),
	"SEARCH":          Extended(11),
	"MAIL":            Extended(12),
	"CALCULATOR":      Extended(13),
	"WWW_BACK":        Extended(14),
	"WWW_FORWARD":     Extended(15),

	"FN": Fn,

	"PAIR":        SpecialPair,
	"HOST_SWITCH": SpecialHostSwitch,
	"NEW_HOST":    SpecialNewHost,
}

var namesByCode = map[Keycode]string{}

func init() {
	for i := 0; i < 26; i++ {
		codesByName[string(rune('A'+i))] = Keycode(0x04 + i)
	}
	// 1..9 then 0, as the usage table orders them.
	for i := 1; i <= 9; i++ {
		codesByName[fmt.Sprint(i)] = Keycode(0x1E + i - 1)
	}
	codesByName["0"] = 0x27
	for i := 1; i <= 12; i++ {
		codesByName[fmt.Sprintf("F%d", i)] = Keycode(0x3A + i - 1)
	}
	for name, code := range codesByName {
		if name == "___" {
			continue
		}
		namesByCode[code] = name
	}
}

// Parse returns the keycode for a key name. Names are case-insensitive; a raw
// hex form such as "0x2004" is also accepted.
func Parse(name string) (Keycode, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return None, nil
	}
	if code, ok := codesByName[n]; ok {
		return code, nil
	}
	var raw uint16
	if _, err := fmt.Sscanf(n, "0X%x", &raw); err == nil {
		return Keycode(raw), nil
	}
	return None, fmt.Errorf("keymap: unknown key name %q", name)
}

// Usage returns the HID keyboard usage for a normal key name.
func Usage(name string) (uint8, bool) {
	code, err := Parse(name)
	if err != nil || !code.IsNormal() {
		return 0, false
	}
	return code.Payload(), true
}

// NameOfUsage returns the name of a normal-key HID usage.
func NameOfUsage(usage uint8) (string, bool) {
	name, ok := namesByCode[Keycode(usage)]
	return name, ok
}
