package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blekbd/internal/bond"
	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Debounce   DebounceConfig   `yaml:"debounce"`
	Scan       ScanConfig       `yaml:"scan"`
	Connection ConnectionConfig `yaml:"connection"`
	Transport  TransportConfig  `yaml:"transport"`
	Bond       BondConfig       `yaml:"bond"`
	Source     SourceConfig     `yaml:"source"`
}

// MatrixConfig holds the key layout as grids of key names, one row per
// output line. Both layers must have the same shape.
type MatrixConfig struct {
	Primary [][]string `yaml:"primary"`
	Fn      [][]string `yaml:"fn"`
}

// DebounceConfig holds debounce settings, in scan passes.
type DebounceConfig struct {
	Slots        int   `yaml:"slots"`
	PressTicks   uint8 `yaml:"press_ticks"`
	ReleaseTicks uint8 `yaml:"release_ticks"`
}

// ScanConfig holds scan timing and policy.
type ScanConfig struct {
	PeriodMicros      uint32 `yaml:"period_us"`
	TimerHz           uint32 `yaml:"timer_hz"`
	Clock             string `yaml:"clock"` // "crystal" or "rc"
	DriftPPM          int32  `yaml:"drift_ppm"`
	Continuous        bool   `yaml:"continuous"`
	QueueSize         int    `yaml:"queue_size"`
	WakeDebounceTicks uint8  `yaml:"wake_debounce_ticks"`
}

// ConnectionConfig holds advertising intervals and lifecycle timeouts.
type ConnectionConfig struct {
	UnbondedInterval    time.Duration `yaml:"unbonded_interval"`
	BondedInterval      time.Duration `yaml:"bonded_interval"`
	DirectedInterval    time.Duration `yaml:"directed_interval"`
	DiscoverableTimeout time.Duration `yaml:"discoverable_timeout"`
	DirectedTimeout     time.Duration `yaml:"directed_timeout"`
	PairingTimeout      time.Duration `yaml:"pairing_timeout"`
	InactivityTimeout   time.Duration `yaml:"inactivity_timeout"`
	TimerHz             uint32        `yaml:"timer_hz"`
	MaxTimerTicks       uint32        `yaml:"max_timer_ticks"`
}

// TransportConfig selects where reports go.
type TransportConfig struct {
	Kind       string `yaml:"kind"` // "ble", "inject" or "log"
	DeviceName string `yaml:"device_name"`
	// Echo mirrors reports accepted by the BLE host to the local desktop.
	Echo bool `yaml:"echo"`
}

// BondConfig holds the bond store settings.
type BondConfig struct {
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
	Slots  int    `yaml:"slots"`
}

// SourceConfig selects what presses the virtual switches.
type SourceConfig struct {
	Kind   string `yaml:"kind"` // "hook" or "script"
	Script string `yaml:"script"`
}

// minSecretLen is the shortest accepted bond secret.
const minSecretLen = 16

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blekbd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

var defaultPrimary = [][]string{
	{"ESC", "1", "2", "3", "4", "5", "6", "7", "8", "9", "0", "BACKSPACE"},
	{"TAB", "Q", "W", "E", "R", "T", "Y", "U", "I", "O", "P", "BACKSLASH"},
	{"CAPSLOCK", "A", "S", "D", "F", "G", "H", "J", "K", "L", "SEMICOLON", "ENTER"},
	{"LSHIFT", "Z", "X", "C", "V", "B", "N", "M", "COMMA", "DOT", "SLASH", "RSHIFT"},
	{"LCTRL", "LGUI", "LALT", "FN", "SPACE", "MINUS", "EQUAL", "QUOTE", "GRAVE", "LBRACKET", "RBRACKET", "RALT"},
}

var defaultFn = [][]string{
	{"GRAVE", "F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "DELETE"},
	{"___", "F11", "F12", "___", "___", "___", "HOME", "PAGEUP", "UP", "PAGEDOWN", "END", "INSERT"},
	{"___", "MUTE", "VOL_DOWN", "VOL_UP", "PLAY_PAUSE", "___", "___", "LEFT", "DOWN", "RIGHT", "___", "___"},
	{"___", "PREV_TRACK", "NEXT_TRACK", "STOP", "___", "___", "___", "___", "BRIGHTNESS_DOWN", "BRIGHTNESS_UP", "___", "___"},
	{"___", "___", "___", "FN", "___", "PAIR", "HOST_SWITCH", "NEW_HOST", "___", "___", "___", "___"},
}

func cloneGrid(g [][]string) [][]string {
	out := make([][]string, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Default returns a Config with sensible default values. The bond secret is
// left empty; WriteDefault generates one.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Matrix: MatrixConfig{
			Primary: cloneGrid(defaultPrimary),
			Fn:      cloneGrid(defaultFn),
		},
		Debounce: DebounceConfig{
			Slots:        16,
			PressTicks:   1,
			ReleaseTicks: 2,
		},
		Scan: ScanConfig{
			PeriodMicros:      1000,
			TimerHz:           32768,
			Clock:             "crystal",
			Continuous:        false,
			QueueSize:         32,
			WakeDebounceTicks: 2,
		},
		Connection: ConnectionConfig{
			UnbondedInterval:    30 * time.Millisecond,
			BondedInterval:      100 * time.Millisecond,
			DirectedInterval:    20 * time.Millisecond,
			DiscoverableTimeout: 180 * time.Second,
			DirectedTimeout:     1280 * time.Millisecond,
			PairingTimeout:      30 * time.Second,
			InactivityTimeout:   10 * time.Minute,
			TimerHz:             32768,
			MaxTimerTicks:       1<<24 - 1,
		},
		Transport: TransportConfig{
			Kind:       "ble",
			DeviceName: "blekbd",
		},
		Bond: BondConfig{
			Path:  filepath.Join("~", ".local", "share", "blekbd", "bonds.bin"),
			Slots: 3,
		},
		Source: SourceConfig{
			Kind: "hook",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in bond.path and source.script is expanded to the
// user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Bond.Path = expandTilde(cfg.Bond.Path)
	cfg.Source.Script = expandTilde(cfg.Source.Script)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if _, err := c.Layout(); err != nil {
		return err
	}

	if c.Debounce.Slots <= 0 {
		return fmt.Errorf("debounce.slots must be > 0")
	}
	if c.Debounce.PressTicks == 0 || c.Debounce.ReleaseTicks == 0 {
		return fmt.Errorf("debounce.press_ticks and debounce.release_ticks must be > 0")
	}

	if c.Scan.PeriodMicros == 0 {
		return fmt.Errorf("scan.period_us must be > 0")
	}
	if c.Scan.TimerHz == 0 {
		return fmt.Errorf("scan.timer_hz must be > 0")
	}
	if _, err := c.clock(); err != nil {
		return err
	}
	if c.Scan.QueueSize <= 0 {
		return fmt.Errorf("scan.queue_size must be > 0")
	}

	cc := c.Connection
	for name, d := range map[string]time.Duration{
		"unbonded_interval":    cc.UnbondedInterval,
		"bonded_interval":      cc.BondedInterval,
		"directed_interval":    cc.DirectedInterval,
		"discoverable_timeout": cc.DiscoverableTimeout,
		"directed_timeout":     cc.DirectedTimeout,
		"pairing_timeout":      cc.PairingTimeout,
		"inactivity_timeout":   cc.InactivityTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("connection.%s must be > 0", name)
		}
	}
	if cc.TimerHz == 0 || cc.MaxTimerTicks == 0 {
		return fmt.Errorf("connection.timer_hz and connection.max_timer_ticks must be > 0")
	}

	switch c.Transport.Kind {
	case "ble":
		if c.Transport.DeviceName == "" {
			return fmt.Errorf("transport.device_name must not be empty for ble")
		}
	case "inject", "log":
	default:
		return fmt.Errorf("transport.kind must be \"ble\", \"inject\" or \"log\", got %q", c.Transport.Kind)
	}

	if c.Bond.Path == "" {
		return fmt.Errorf("bond.path must not be empty")
	}
	if len(c.Bond.Secret) < minSecretLen {
		return fmt.Errorf("bond.secret must be at least %d characters", minSecretLen)
	}
	if c.Bond.Slots <= 0 || c.Bond.Slots > bond.MaxSlots {
		return fmt.Errorf("bond.slots must be 1..%d, got %d", bond.MaxSlots, c.Bond.Slots)
	}

	switch c.Source.Kind {
	case "hook":
	case "script":
		if c.Source.Script == "" {
			return fmt.Errorf("source.script must be set for the script source")
		}
	default:
		return fmt.Errorf("source.kind must be \"hook\" or \"script\", got %q", c.Source.Kind)
	}

	return nil
}

// Layout parses the matrix layers.
func (c *Config) Layout() (*keymap.Layout, error) {
	l, err := keymap.ParseLayout(c.Matrix.Primary, c.Matrix.Fn)
	if err != nil {
		return nil, fmt.Errorf("matrix: %w", err)
	}
	return l, nil
}

func (c *Config) clock() (keyscan.ClockSource, error) {
	switch c.Scan.Clock {
	case "crystal", "":
		return keyscan.ClockCrystal, nil
	case "rc":
		return keyscan.ClockRC, nil
	default:
		return 0, fmt.Errorf("scan.clock must be \"crystal\" or \"rc\", got %q", c.Scan.Clock)
	}
}

// ScanConfig returns the scanner settings.
func (c *Config) ScanConfig() keyscan.ScanConfig {
	clock, _ := c.clock()
	return keyscan.ScanConfig{
		PeriodMicros: c.Scan.PeriodMicros,
		TimerHz:      c.Scan.TimerHz,
		Clock:        clock,
		DriftPPM:     c.Scan.DriftPPM,
		Continuous:   c.Scan.Continuous,
	}
}

// ConnConfig returns the connection FSM settings.
func (c *Config) ConnConfig() conn.Config {
	cc := c.Connection
	return conn.Config{
		UnbondedInterval:    cc.UnbondedInterval,
		BondedInterval:      cc.BondedInterval,
		DirectedInterval:    cc.DirectedInterval,
		DiscoverableTimeout: cc.DiscoverableTimeout,
		DirectedTimeout:     cc.DirectedTimeout,
		PairingTimeout:      cc.PairingTimeout,
		InactivityTimeout:   cc.InactivityTimeout,
	}
}

// ParseLogLevel maps a log_level value to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# blekbd configuration
# Generated on first run. Edit as needed; missing fields use defaults.
# bond.secret protects the stored host bonds. Changing it makes existing
# bonds unreadable.

`

// WriteDefault writes the default config, with a freshly generated bond
// secret, to DefaultConfigPath. It returns the path written, or "" if a
// config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generating bond secret: %w", err)
	}
	cfg := Default()
	cfg.Bond.Secret = hex.EncodeToString(secret)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
