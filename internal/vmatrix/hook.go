package vmatrix

import (
	"context"
	"log/slog"
	"strings"

	hook "github.com/robotn/gohook"

	"github.com/chaz8081/blekbd/internal/keymap"
)

// desktopAliases maps gohook key names that differ from keymap names.
var desktopAliases = map[string]string{
	"ctrl":      "LCTRL",
	"lctrl":     "LCTRL",
	"rctrl":     "RCTRL",
	"shift":     "LSHIFT",
	"lshift":    "LSHIFT",
	"rshift":    "RSHIFT",
	"alt":       "LALT",
	"lalt":      "LALT",
	"ralt":      "RALT",
	"cmd":       "LGUI",
	"lcmd":      "LGUI",
	"rcmd":      "RGUI",
	"esc":       "ESC",
	"escape":    "ESC",
	"return":    "ENTER",
	"enter":     "ENTER",
	"backspace": "BACKSPACE",
	"delete":    "DELETE",
	"space":     "SPACE",
	"tab":       "TAB",
	"capslock":  "CAPSLOCK",
	"pageup":    "PAGEUP",
	"pagedown":  "PAGEDOWN",
	"-":         "MINUS",
	"=":         "EQUAL",
	"[":         "LBRACKET",
	"]":         "RBRACKET",
	"\\":        "BACKSLASH",
	";":         "SEMICOLON",
	"'":         "QUOTE",
	"`":         "GRAVE",
	",":         "COMMA",
	".":         "DOT",
	"/":         "SLASH",
}

// DesktopKey returns the keymap keycode for a gohook key name.
func DesktopKey(name string) (keymap.Keycode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return keymap.None, false
	}
	if alias, ok := desktopAliases[name]; ok {
		name = alias
	}
	code, err := keymap.Parse(name)
	if err != nil || code == keymap.None {
		return keymap.None, false
	}
	return code, true
}

// HookSource closes matrix switches while the matching desktop keys are
// held, using a global keyboard hook.
type HookSource struct {
	m      *Matrix
	layout *keymap.Layout
}

// NewHookSource creates a hook source for layout. Panics if m or layout is
// nil (programmer error).
func NewHookSource(m *Matrix, layout *keymap.Layout) *HookSource {
	if m == nil || layout == nil {
		panic("vmatrix: NewHookSource called with nil matrix or layout")
	}
	return &HookSource{m: m, layout: layout}
}

// Run listens for desktop key events until ctx is cancelled.
func (h *HookSource) Run(ctx context.Context) error {
	evChan := hook.Start()
	defer hook.End()
	slog.Info("[MATRIX] desktop key hook started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evChan:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hook.KeyHold:
				h.apply(hook.RawcodetoKeychar(ev.Rawcode), true)
			case hook.KeyUp:
				h.apply(hook.RawcodetoKeychar(ev.Rawcode), false)
			}
		}
	}
}

// apply flips the switch for a desktop key name. Keys without a place in
// the layout are ignored.
func (h *HookSource) apply(name string, down bool) bool {
	code, ok := DesktopKey(name)
	if !ok {
		return false
	}
	out, in, ok := h.layout.Find(code)
	if !ok {
		return false
	}
	if err := h.m.Set(out, in, down); err != nil {
		slog.Warn("[MATRIX] hook key outside matrix", "key", name, "error", err)
		return false
	}
	return true
}
