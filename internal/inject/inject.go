// Package inject replays HID reports as desktop key events using robotgo, so
// the keyboard core can be driven and observed without a BLE host.
package inject

import (
	"fmt"
	"log/slog"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/report"
)

// KeyToggler presses or releases one desktop key by robotgo name.
type KeyToggler interface {
	KeyToggle(key string, down bool) error
}

// Robotgo toggles keys on the local desktop.
type Robotgo struct{}

// KeyToggle implements KeyToggler.
func (Robotgo) KeyToggle(key string, down bool) error {
	dir := "up"
	if down {
		dir = "down"
	}
	return robotgo.KeyToggle(key, dir)
}

// Injector is a report.Transport that diffs each report against the last
// one of its kind and toggles the keys that changed.
type Injector struct {
	keys     KeyToggler
	normal   [report.NormalLen]byte
	extended [report.ExtendedLen]byte
}

var _ report.Transport = (*Injector)(nil)

// NewInjector creates an Injector. Panics if keys is nil (programmer error).
func NewInjector(keys KeyToggler) *Injector {
	if keys == nil {
		panic("inject: NewInjector called with nil key toggler")
	}
	return &Injector{keys: keys}
}

// SendReport implements report.Transport.
func (inj *Injector) SendReport(kind report.Kind, data []byte) error {
	if len(data) != kind.Len() {
		return fmt.Errorf("inject: %s report has %d bytes, want %d", kind, len(data), kind.Len())
	}
	if kind == report.KindExtended {
		return inj.consumer([report.ExtendedLen]byte(data))
	}
	return inj.keyboard([report.NormalLen]byte(data))
}

func (inj *Injector) keyboard(next [report.NormalLen]byte) error {
	// Roll-over error reports carry no key state; the previous keys stay
	// down until a real report arrives.
	if next[2] == keymap.ErrorRollOver {
		slog.Debug("[INJECT] roll-over report")
		return nil
	}
	prev := inj.normal
	inj.normal = next

	// Releases first so a key moving between slots is not dropped.
	for _, u := range prev[2:] {
		if u != 0 && !hasUsage(next[2:], u) {
			if err := inj.toggleUsage(u, false); err != nil {
				return err
			}
		}
	}
	for i := range 8 {
		bit := uint8(1) << i
		was, is := prev[0]&bit != 0, next[0]&bit != 0
		if was == is {
			continue
		}
		if err := inj.toggle(modifierKeys[i], is); err != nil {
			return err
		}
	}
	for _, u := range next[2:] {
		if u != 0 && !hasUsage(prev[2:], u) {
			if err := inj.toggleUsage(u, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (inj *Injector) consumer(next [report.ExtendedLen]byte) error {
	prev := inj.extended
	inj.extended = next
	for bit := range len(keymap.ConsumerUsages) {
		mask := byte(1) << (bit % 8)
		was, is := prev[bit/8]&mask != 0, next[bit/8]&mask != 0
		if was == is {
			continue
		}
		key := consumerKeys[bit]
		if key == "" {
			slog.Debug("[INJECT] consumer usage has no desktop key", "usage", keymap.ConsumerUsages[bit])
			continue
		}
		if err := inj.toggle(key, is); err != nil {
			return err
		}
	}
	return nil
}

func (inj *Injector) toggleUsage(usage byte, down bool) error {
	key, ok := desktopKey(usage)
	if !ok {
		slog.Debug("[INJECT] usage has no desktop key", "usage", usage)
		return nil
	}
	return inj.toggle(key, down)
}

func (inj *Injector) toggle(key string, down bool) error {
	if err := inj.keys.KeyToggle(key, down); err != nil {
		return fmt.Errorf("inject: toggle %q: %w", key, err)
	}
	return nil
}

// Release lifts every key the injector holds down.
func (inj *Injector) Release() error {
	if err := inj.keyboard([report.NormalLen]byte{}); err != nil {
		return err
	}
	return inj.consumer([report.ExtendedLen]byte{})
}

func hasUsage(slots []byte, u byte) bool {
	for _, s := range slots {
		if s == u {
			return true
		}
	}
	return false
}
