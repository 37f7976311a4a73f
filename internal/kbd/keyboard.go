// Package kbd runs the keyboard: a single cooperative loop that owns the
// scan, report and connection state and reacts to interrupt flags, timer
// expiries and link events.
package kbd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
	"github.com/chaz8081/blekbd/internal/report"
	"github.com/chaz8081/blekbd/internal/timer"
)

// DebounceConfig sizes the debounce table.
type DebounceConfig struct {
	Slots        int
	PressTicks   uint8
	ReleaseTicks uint8
}

// Options wires a keyboard to its hardware. Interrupts must be the set the
// edge controllers and the ticker raise.
type Options struct {
	Layout     *keymap.Layout
	GPIO       keyscan.GPIO
	Ticker     keyscan.Ticker
	Interrupts *Interrupts
	// ScanWake wakes the scan FSM from Idle.
	ScanWake keyscan.WakeController
	// SleepWake wakes the device from DisconnectedIdle.
	SleepWake keyscan.WakeController

	Transport report.Transport
	Link      conn.Link
	Hosts     conn.HostStore

	TimerHW       timer.Hardware
	TimerC        <-chan timer.ID
	TimerHz       uint32
	MaxTimerTicks uint32

	Scan         keyscan.ScanConfig
	Debounce     DebounceConfig
	WakeDebounce uint8
	QueueSize    int
	Conn         conn.Config

	// Watchdog is called when the connection FSM hits a protocol violation.
	Watchdog func(error)
}

// Keyboard is the firmware core. All methods except Notify must be called
// from the goroutine running Run.
type Keyboard struct {
	state   PersistentState
	session SessionState

	irq       *Interrupts
	sleepWake keyscan.WakeController
	wakeDeb   uint8
	transport report.Transport
	timerC    <-chan timer.ID
	watchdog  func(error)

	inbox chan conn.Event
	done  chan struct{}
	fatal error
}

// inboxSize bounds the link events waiting for the loop.
const inboxSize = 16

// New builds a keyboard from opts.
func New(opts Options) (*Keyboard, error) {
	switch {
	case opts.Layout == nil:
		return nil, errors.New("kbd: layout is required")
	case opts.GPIO == nil || opts.Ticker == nil || opts.ScanWake == nil || opts.SleepWake == nil:
		return nil, errors.New("kbd: gpio, ticker and wake controllers are required")
	case opts.Interrupts == nil:
		return nil, errors.New("kbd: interrupts are required")
	case opts.Transport == nil || opts.Link == nil || opts.Hosts == nil || opts.TimerHW == nil:
		return nil, errors.New("kbd: transport, link, hosts and timer hardware are required")
	case opts.Debounce.Slots <= 0:
		return nil, fmt.Errorf("kbd: debounce slots must be positive, got %d", opts.Debounce.Slots)
	case opts.QueueSize <= 0:
		return nil, fmt.Errorf("kbd: queue size must be positive, got %d", opts.QueueSize)
	case opts.TimerHz == 0 || opts.MaxTimerTicks == 0:
		return nil, errors.New("kbd: timer rate and range must be positive")
	}

	k := &Keyboard{
		irq:       opts.Interrupts,
		sleepWake: opts.SleepWake,
		wakeDeb:   opts.WakeDebounce,
		transport: opts.Transport,
		timerC:    opts.TimerC,
		watchdog:  opts.Watchdog,
		inbox:     make(chan conn.Event, inboxSize),
		done:      make(chan struct{}),
	}

	queue := keyscan.NewEventQueue(opts.QueueSize)
	matrix := keyscan.NewMatrix(opts.Layout, keyscan.NewDebouncer(opts.Debounce.Slots, opts.Debounce.PressTicks, opts.Debounce.ReleaseTicks), queue)
	synth := report.NewSynthesizer(opts.Layout, queue, report.NewPool())
	k.session = SessionState{Matrix: matrix, Queue: queue, Synth: synth}

	matrix.SetOnPress(func(keyscan.KeyEvent) { k.session.keyPress = true })
	synth.SetSpecialFunc(k.special)
	synth.SetResyncFunc(matrix.Reset)

	scanner := keyscan.NewScanner(opts.GPIO, matrix, sink{k}, opts.Scan)
	timers := timer.NewService(opts.TimerHW, opts.TimerHz, opts.MaxTimerTicks)
	fsm := conn.NewFSM(opts.Conn, opts.Link, opts.Hosts, k, timers)
	fsm.OnTransition(k.onTransition)
	fsm.OnFatal(k.onFatal)

	k.state = PersistentState{
		Layout:  opts.Layout,
		Scanner: scanner,
		Scan:    keyscan.NewFSM(scanner, opts.Ticker, opts.ScanWake, opts.WakeDebounce),
		Conn:    fsm,
		Timers:  timers,
	}
	return k, nil
}

// sink routes the events of a finished pass either to the report
// synthesizer or, while the host waits for a passkey, to passkey entry.
type sink struct{ k *Keyboard }

func (s sink) Process() int {
	if !s.k.session.passkeyMode {
		return s.k.session.Synth.Process()
	}
	return s.k.collectPasskey()
}

func (k *Keyboard) collectPasskey() int {
	n := 0
	for {
		ev, ok := k.session.Queue.Pop()
		if !ok {
			return n
		}
		n++
		if !ev.Pressed() {
			continue
		}
		code := k.state.Layout.Lookup(keymap.LayerPrimary, int(ev.Out), int(ev.In))
		if v, ok := k.session.passkey.key(code); ok {
			slog.Info("[CONN] passkey entered")
			k.session.passkeys = append(k.session.passkeys, v)
		}
	}
}

func (k *Keyboard) special(code keymap.Keycode, pressed bool) {
	if pressed {
		k.session.specials = append(k.session.specials, code)
	}
}

// State returns the persistent state.
func (k *Keyboard) State() *PersistentState { return &k.state }

// Session returns the per-connection state.
func (k *Keyboard) Session() *SessionState { return &k.session }

// ConnState returns the connection state.
func (k *Keyboard) ConnState() conn.State { return k.state.Conn.State() }

// ScanState returns the scan state.
func (k *Keyboard) ScanState() keyscan.ScanState { return k.state.Scan.State() }

// ScanTick advances the matrix scan by one row.
func (k *Keyboard) ScanTick() bool { return k.state.Scanner.ScanTick() }

// PostScanUpdate runs the end-of-pass bookkeeping.
func (k *Keyboard) PostScanUpdate() bool { return k.state.Scanner.PostScanUpdate() }

// HasQueuedReports reports whether a report waits for the transport.
func (k *Keyboard) HasQueuedReports() bool { return k.session.Synth.HasQueued() }

// DrainOneReport sends the oldest pending report. Transport errors are
// logged and leave the report queued.
func (k *Keyboard) DrainOneReport() bool {
	sent, err := k.session.Synth.DrainOne(k.transport)
	if err != nil {
		slog.Error("[REPORT] transport failed", "error", err)
		return false
	}
	return sent
}

// FlushKeyEventQueue discards queued key events.
func (k *Keyboard) FlushKeyEventQueue() { k.session.Queue.Flush() }

// FlushReportPool discards pending reports.
func (k *Keyboard) FlushReportPool() { k.session.Synth.FlushReports() }

// PostConnectionEvent delivers ev to the connection FSM.
func (k *Keyboard) PostConnectionEvent(ev conn.Event) error {
	return k.state.Conn.Post(ev)
}

// Notify queues a link event for the loop. It is safe to call from any
// goroutine. It blocks while the inbox is full and drops the event once Run
// has returned.
func (k *Keyboard) Notify(ev conn.Event) {
	select {
	case k.inbox <- ev:
	case <-k.done:
		slog.Warn("[CONN] keyboard stopped, link event dropped", "event", ev.Kind)
	}
}

// Flush implements conn.Actions.
func (k *Keyboard) Flush() { k.session.Flush() }

// ResetSession implements conn.Actions.
func (k *Keyboard) ResetSession() { k.session.Reset() }

// SetPasskeyMode implements conn.Actions.
func (k *Keyboard) SetPasskeyMode(on bool) {
	k.session.passkeyMode = on
	k.session.passkey.reset()
}

// SuspendScanning implements conn.Actions.
func (k *Keyboard) SuspendScanning(suspend bool) {
	if suspend {
		k.state.Scan.Stop()
		return
	}
	k.state.Scan.Start()
}

func (k *Keyboard) onTransition(from, to conn.State, ev conn.Event) {
	if to != conn.StateDisconnectedIdle {
		return
	}
	// Deep sleep: only the wake edge brings the keyboard back.
	k.state.Scan.Stop()
	k.state.Scanner.SetupIdle()
	k.sleepWake.ArmEdge(k.state.Scanner.ColumnMask(), keyscan.PolarityLow, k.wakeDeb)
	slog.Info("[CONN] sleeping until a key is pressed")
}

func (k *Keyboard) onFatal(err error) {
	if k.fatal == nil {
		k.fatal = err
	}
	if k.watchdog != nil {
		k.watchdog(err)
	}
}

// post delivers an event from inside the loop. Errors already reached the
// fatal hook.
func (k *Keyboard) post(ev conn.Event) {
	_ = k.state.Conn.Post(ev)
}

// Run starts scanning and serves interrupts until ctx is cancelled or the
// connection FSM reports a protocol violation. It must be called once.
func (k *Keyboard) Run(ctx context.Context) error {
	k.state.Scan.Start()
	slog.Info("[SCAN] keyboard running", "rows", k.state.Layout.Rows(), "cols", k.state.Layout.Cols())
	defer close(k.done)
	defer k.shutdown()

	for {
		k.service()
		if k.fatal != nil {
			return k.fatal
		}

		select {
		case <-ctx.Done():
			return nil
		case <-k.irq.C():
		case ev := <-k.inbox:
			k.post(ev)
		case id := <-k.timerC:
			if !k.state.Timers.Expired(id) {
				continue
			}
			if ev, ok := conn.TimerEvent(id); ok {
				k.post(ev)
			}
		}
	}
}

// service handles every raised interrupt, then the deferred events, then
// drains reports while the link can take them.
func (k *Keyboard) service() {
	if k.irq.takeWake() {
		k.sleepWake.Disarm()
		if err := k.state.Conn.Wake(); err != nil {
			return
		}
		k.state.Scan.Start()
	}
	if k.irq.takeEdge() {
		k.state.Scan.Step(keyscan.WakeEdge)
	}
	if k.irq.takeTick() {
		k.state.Scan.Step(keyscan.WakeTick)
	}
	for k.state.Scan.NeedsStep() {
		k.state.Scan.Step(keyscan.WakeNone)
	}

	// Key events of a pass are only complete once it has ended.
	if k.state.Scan.State() != keyscan.ScanScanning || k.state.Scanner.Cursor() == 0 {
		k.postDeferred()
	}

	for k.state.Conn.State() == conn.StateConnected && !k.session.passkeyMode {
		if !k.DrainOneReport() {
			break
		}
	}
}

// postDeferred turns the passkeys, special keys and the key-press notice of
// this iteration into connection events. Eligibility is decided against the
// state at posting time.
func (k *Keyboard) postDeferred() {
	passkeys := k.session.passkeys
	k.session.passkeys = k.session.passkeys[:0]
	for _, v := range passkeys {
		if k.state.Conn.State() == conn.StateConnectedPairing {
			k.post(conn.Event{Kind: conn.PasskeyEntered, Passkey: v})
		}
	}

	specials := k.session.specials
	k.session.specials = k.session.specials[:0]
	for _, code := range specials {
		if ev, ok := specialEvent(code, k.state.Conn.State()); ok {
			k.post(conn.Ev(ev))
		} else {
			slog.Debug("[CONN] special key ignored", "key", code, "state", k.state.Conn.State())
		}
	}

	if k.session.keyPress {
		k.session.keyPress = false
		k.post(conn.Ev(conn.KeyPress))
	}
}

func specialEvent(code keymap.Keycode, st conn.State) (conn.Kind, bool) {
	switch code {
	case keymap.SpecialPair:
		return conn.PairingRequested, st == conn.StateIdle
	case keymap.SpecialHostSwitch, keymap.SpecialNewHost:
		kind := conn.HostSwitch
		if code == keymap.SpecialNewHost {
			kind = conn.NewHost
		}
		switch st {
		case conn.StateIdle, conn.StateAdvertise, conn.StateDirectedAdvertise, conn.StateConnected:
			return kind, true
		}
	}
	return conn.NoEvent, false
}

func (k *Keyboard) shutdown() {
	k.state.Scan.Stop()
	k.sleepWake.Disarm()
	k.state.Timers.CancelAll()
	slog.Info("[SCAN] keyboard stopped")
}
