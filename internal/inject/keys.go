package inject

import (
	"strings"

	"github.com/chaz8081/blekbd/internal/keymap"
)

// modifierKeys names the robotgo key for each modifier bit.
var modifierKeys = [8]string{"lctrl", "lshift", "lalt", "lcmd", "rctrl", "rshift", "ralt", "rcmd"}

// consumerKeys names the robotgo key for each extended bit, in
// keymap.ConsumerUsages order. Empty entries have no desktop equivalent.
var consumerKeys = [len(keymap.ConsumerUsages)]string{
	"audio_mute",
	"audio_vol_up",
	"audio_vol_down",
	"audio_play",
	"audio_next",
	"audio_prev",
	"audio_stop",
	"",
	"lights_mon_up",
	"lights_mon_down",
	"",
	"",
	"",
	"",
	"",
	"",
}

// namedKeys maps key names whose robotgo name differs from the lower-cased
// key name.
var namedKeys = map[string]string{
	"ESC":         "esc",
	"MINUS":       "-",
	"EQUAL":       "=",
	"LBRACKET":    "[",
	"RBRACKET":    "]",
	"BACKSLASH":   "\\",
	"SEMICOLON":   ";",
	"QUOTE":       "'",
	"GRAVE":       "`",
	"COMMA":       ",",
	"DOT":         ".",
	"SLASH":       "/",
	"SCROLLLOCK":  "scroll_lock",
	"APPLICATION": "menu",
}

// desktopKey returns the robotgo key name for a keyboard usage.
func desktopKey(usage byte) (string, bool) {
	name, ok := keymap.NameOfUsage(usage)
	if !ok || name == "NONE" {
		return "", false
	}
	if key, ok := namedKeys[name]; ok {
		return key, true
	}
	return strings.ToLower(name), true
}
