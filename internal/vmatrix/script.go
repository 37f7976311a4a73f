package vmatrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blekbd/internal/keymap"
)

// BounceGap is the time between contact bounces within a step.
const BounceGap = 500 * time.Microsecond

// KeyList is a list of key references. In YAML it may be written as a single
// scalar or a sequence. A reference is a key name from the layout or an
// explicit "@out,in" intersection.
type KeyList []string

// UnmarshalYAML accepts both "A" and [A, B].
func (k *KeyList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = KeyList{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*k = names
		return nil
	default:
		return fmt.Errorf("line %d: keys must be a name or a list of names", node.Line)
	}
}

// Step is one scripted action. Exactly one of Press, Release or Tap is set,
// or none for a pure wait.
type Step struct {
	Press   KeyList `yaml:"press,omitempty"`
	Release KeyList `yaml:"release,omitempty"`
	// Tap presses the keys, holds them for Hold, then releases them.
	Tap  KeyList       `yaml:"tap,omitempty"`
	Hold time.Duration `yaml:"hold,omitempty"`
	// Bounce is the number of contact bounces before a switch settles.
	Bounce int           `yaml:"bounce,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty"`
}

// Script is a timed sequence of switch actions.
type Script struct {
	Name   string `yaml:"name"`
	Repeat int    `yaml:"repeat"`
	Steps  []Step `yaml:"steps"`
}

// ErrEmptyScript is returned for scripts without steps.
var ErrEmptyScript = errors.New("vmatrix: script has no steps")

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vmatrix: parsing script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, ErrEmptyScript
	}
	for i, st := range s.Steps {
		set := 0
		for _, l := range []KeyList{st.Press, st.Release, st.Tap} {
			if len(l) > 0 {
				set++
			}
		}
		if set > 1 {
			return nil, fmt.Errorf("vmatrix: step %d: press, release and tap are exclusive", i)
		}
		if st.Bounce < 0 {
			return nil, fmt.Errorf("vmatrix: step %d: negative bounce count", i)
		}
	}
	return &s, nil
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vmatrix: reading script: %w", err)
	}
	return ParseScript(data)
}

// ScriptSource plays a script against a matrix.
type ScriptSource struct {
	m      *Matrix
	layout *keymap.Layout
	script *Script
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewScriptSource creates a source that plays script. Panics on nil
// arguments (programmer error).
func NewScriptSource(m *Matrix, layout *keymap.Layout, script *Script) *ScriptSource {
	if m == nil || layout == nil || script == nil {
		panic("vmatrix: NewScriptSource called with nil argument")
	}
	return &ScriptSource{m: m, layout: layout, script: script, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type point struct{ out, in int }

// resolve turns a key reference into an intersection.
func (s *ScriptSource) resolve(ref string) (point, error) {
	if rest, ok := strings.CutPrefix(ref, "@"); ok {
		o, i, found := strings.Cut(rest, ",")
		if !found {
			return point{}, fmt.Errorf("vmatrix: bad intersection %q", ref)
		}
		out, err := strconv.Atoi(strings.TrimSpace(o))
		if err != nil {
			return point{}, fmt.Errorf("vmatrix: bad intersection %q: %w", ref, err)
		}
		in, err := strconv.Atoi(strings.TrimSpace(i))
		if err != nil {
			return point{}, fmt.Errorf("vmatrix: bad intersection %q: %w", ref, err)
		}
		return point{out, in}, nil
	}
	code, err := keymap.Parse(ref)
	if err != nil {
		return point{}, fmt.Errorf("vmatrix: %w", err)
	}
	out, in, ok := s.layout.Find(code)
	if !ok {
		return point{}, fmt.Errorf("vmatrix: key %q is not in the layout", ref)
	}
	return point{out, in}, nil
}

// Run plays the script, Repeat+1 times, until done or ctx is cancelled.
// Switches the script left closed are opened on return.
func (s *ScriptSource) Run(ctx context.Context) error {
	held := map[point]bool{}
	defer func() {
		for p := range held {
			_ = s.m.Release(p.out, p.in)
		}
	}()

	slog.Info("[MATRIX] playing script", "name", s.script.Name, "steps", len(s.script.Steps), "repeat", s.script.Repeat)
	for round := 0; round <= s.script.Repeat; round++ {
		for i, st := range s.script.Steps {
			if err := s.step(ctx, st, held); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}

func (s *ScriptSource) step(ctx context.Context, st Step, held map[point]bool) error {
	switch {
	case len(st.Press) > 0:
		if err := s.flip(ctx, st.Press, true, st.Bounce, held); err != nil {
			return err
		}
	case len(st.Release) > 0:
		if err := s.flip(ctx, st.Release, false, st.Bounce, held); err != nil {
			return err
		}
	case len(st.Tap) > 0:
		if err := s.flip(ctx, st.Tap, true, st.Bounce, held); err != nil {
			return err
		}
		if err := s.sleep(ctx, st.Hold); err != nil {
			return err
		}
		if err := s.flip(ctx, st.Tap, false, st.Bounce, held); err != nil {
			return err
		}
	}
	return s.sleep(ctx, st.Wait)
}

// flip moves every referenced switch to down, bouncing first.
func (s *ScriptSource) flip(ctx context.Context, refs KeyList, down bool, bounce int, held map[point]bool) error {
	points := make([]point, 0, len(refs))
	for _, ref := range refs {
		p, err := s.resolve(ref)
		if err != nil {
			return err
		}
		points = append(points, p)
	}
	for _, p := range points {
		// Contacts chatter between the two levels before settling.
		for b := 0; b < bounce; b++ {
			if err := s.m.Set(p.out, p.in, b%2 == 0 == down); err != nil {
				return err
			}
			if err := s.sleep(ctx, BounceGap); err != nil {
				return err
			}
		}
		if err := s.m.Set(p.out, p.in, down); err != nil {
			return err
		}
		if down {
			held[p] = true
		} else {
			delete(held, p)
		}
	}
	return nil
}
