package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/bond"
	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/inject"
	"github.com/chaz8081/blekbd/internal/kbd"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/report"
	"github.com/chaz8081/blekbd/internal/timer"
	"github.com/chaz8081/blekbd/internal/vmatrix"
)

// scriptGrace lets the last reports of a script drain before exiting.
const scriptGrace = 500 * time.Millisecond

var (
	runTransport string
	runScript    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the keyboard until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runTransport != "" {
			cfg.Transport.Kind = runTransport
		}
		if runScript != "" {
			cfg.Source.Kind = "script"
			cfg.Source.Script = runScript
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runKeyboard(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTransport, "transport", "", "report transport: ble, inject or log (overrides config)")
	runCmd.Flags().StringVar(&runScript, "script", "", "play a key script instead of hooking the desktop keyboard")
}

// source presses switches on the virtual matrix.
type source interface {
	Run(ctx context.Context) error
}

func runKeyboard(ctx context.Context, cfg *config.Config) error {
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}
	m, err := vmatrix.New(layout.Rows(), layout.Cols())
	if err != nil {
		return err
	}

	irq := kbd.NewInterrupts()
	scanWake := m.NewEdgeController("scan", irq.Edge)
	sleepWake := m.NewEdgeController("sleep", irq.Wake)
	ticker := kbd.NewHostTicker(cfg.Scan.TimerHz, irq.Tick)
	defer ticker.Disarm()

	timers := timer.NewHost(cfg.Connection.TimerHz)
	defer timers.Close()

	store, err := bond.Open(cfg.Bond.Path, cfg.Bond.Slots, []byte(cfg.Bond.Secret))
	if err != nil {
		return err
	}
	defer store.Close()
	hosts := bond.NewHosts(store)

	// Link callbacks only start once the keyboard exists.
	var kb *kbd.Keyboard
	notify := func(ev conn.Event) { kb.Notify(ev) }

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		transport report.Transport
		link      conn.Link
		hid       *ble.HID
	)
	switch cfg.Transport.Kind {
	case "ble":
		hid = ble.NewHID(ble.NewTinygoPeripheral(), cfg.Transport.DeviceName, notify)
		transport, link = hid, hid
		if cfg.Transport.Echo {
			transport = inject.NewMirror(hid, inject.NewInjector(inject.Robotgo{}))
		}
	case "inject", "log":
		local := inject.NewLocalLink(notify)
		go local.Run(ctx)
		link = local
		if cfg.Transport.Kind == "inject" {
			inj := inject.NewInjector(inject.Robotgo{})
			defer func() {
				if err := inj.Release(); err != nil {
					slog.Warn("[INJECT] release failed", "error", err)
				}
			}()
			transport = inj
		} else {
			transport = inject.Logger{}
		}
	}

	src, err := newSource(cfg, m, layout)
	if err != nil {
		return err
	}

	kb, err = kbd.New(kbd.Options{
		Layout:     layout,
		GPIO:       m,
		Ticker:     ticker,
		Interrupts: irq,
		ScanWake:   scanWake,
		SleepWake:  sleepWake,
		Transport:  transport,
		Link:       link,
		Hosts:      hosts,
		TimerHW:    timers,
		TimerC:     timers.C(),
		TimerHz:    cfg.Connection.TimerHz,
		// The host timer bank has no hardware limit, but chaining is kept
		// so long timeouts behave as on the device.
		MaxTimerTicks: cfg.Connection.MaxTimerTicks,
		Scan:          cfg.ScanConfig(),
		Debounce: kbd.DebounceConfig{
			Slots:        cfg.Debounce.Slots,
			PressTicks:   cfg.Debounce.PressTicks,
			ReleaseTicks: cfg.Debounce.ReleaseTicks,
		},
		WakeDebounce: cfg.Scan.WakeDebounceTicks,
		QueueSize:    cfg.Scan.QueueSize,
		Conn:         cfg.ConnConfig(),
		Watchdog: func(err error) {
			slog.Error("[CONN] watchdog reset", "error", err)
		},
	})
	if err != nil {
		return err
	}

	if hid != nil {
		if err := hid.Start(); err != nil {
			return err
		}
	}

	printBanner(cfg, hosts)

	go func() {
		if err := src.Run(ctx); err != nil {
			slog.Error("[MATRIX] source stopped", "error", err)
		}
		if cfg.Source.Kind == "script" {
			slog.Info("[MATRIX] script finished")
			select {
			case <-ctx.Done():
			case <-time.After(scriptGrace):
			}
			cancel()
		}
	}()

	err = kb.Run(ctx)
	slog.Info("[SCAN] keyboard stopped", "conn_state", kb.ConnState())
	return err
}

func newSource(cfg *config.Config, m *vmatrix.Matrix, layout *keymap.Layout) (source, error) {
	if cfg.Source.Kind == "script" {
		s, err := vmatrix.LoadScript(cfg.Source.Script)
		if err != nil {
			return nil, err
		}
		return vmatrix.NewScriptSource(m, layout, s), nil
	}
	return vmatrix.NewHookSource(m, layout), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, hosts *bond.Hosts) {
	peer, bonded := hosts.Active()
	if peer == "" {
		peer = "(none)"
	}
	fmt.Fprintln(os.Stderr, "=== blekbd ===")
	fmt.Fprintf(os.Stderr, "  Matrix:    %dx%d\n", len(cfg.Matrix.Primary), len(cfg.Matrix.Primary[0]))
	fmt.Fprintf(os.Stderr, "  Source:    %s\n", cfg.Source.Kind)
	fmt.Fprintf(os.Stderr, "  Transport: %s\n", cfg.Transport.Kind)
	fmt.Fprintf(os.Stderr, "  Host slot: %d %s (bonded: %v)\n", hosts.Slot(), peer, bonded)
	fmt.Fprintf(os.Stderr, "  Log:       %s\n", cfg.LogLevel)
	fmt.Fprintln(os.Stderr, "==============")
}
