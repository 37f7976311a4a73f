package keyscan

import "log/slog"

// ScanState is the phase of the scan cycle.
type ScanState uint8

// Scan states.
const (
	ScanInactive ScanState = iota
	ScanIdle
	ScanScanning
	ScanStatusUpdate
)

func (s ScanState) String() string {
	switch s {
	case ScanInactive:
		return "inactive"
	case ScanIdle:
		return "idle"
	case ScanScanning:
		return "scanning"
	case ScanStatusUpdate:
		return "status-update"
	default:
		return "unknown"
	}
}

// WakeReason is what woke the cooperative loop.
type WakeReason uint8

// Wake reasons.
const (
	WakeNone WakeReason = iota
	WakeTick
	WakeEdge
)

func (r WakeReason) String() string {
	switch r {
	case WakeNone:
		return "none"
	case WakeTick:
		return "tick"
	case WakeEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// FSM decides between sleeping with the edge interrupt armed and actively
// scanning on the periodic tick.
type FSM struct {
	scanner      *Scanner
	ticker       Ticker
	wake         WakeController
	wakeDebounce uint8

	state   ScanState
	enabled bool
}

// NewFSM creates a scan FSM in the Inactive state. It stays there until
// Start is called.
func NewFSM(scanner *Scanner, ticker Ticker, wake WakeController, wakeDebounce uint8) *FSM {
	if scanner == nil || ticker == nil || wake == nil {
		panic("keyscan: NewFSM called with nil collaborator")
	}
	return &FSM{scanner: scanner, ticker: ticker, wake: wake, wakeDebounce: wakeDebounce}
}

// State returns the current scan state.
func (f *FSM) State() ScanState { return f.state }

// Enabled reports whether scanning is allowed.
func (f *FSM) Enabled() bool { return f.enabled }

// CanSleep reports whether nothing but an edge can make progress.
func (f *FSM) CanSleep() bool {
	return f.state == ScanIdle || (f.state == ScanInactive && !f.enabled)
}

// NeedsStep reports whether the FSM has work that does not wait on a wake
// source.
func (f *FSM) NeedsStep() bool {
	return f.state == ScanStatusUpdate || (f.state == ScanInactive && f.enabled)
}

// Start enables scanning and arms the edge interrupt.
func (f *FSM) Start() {
	f.enabled = true
	if f.state == ScanInactive {
		f.Step(WakeNone)
	}
}

// Stop disarms every wake source and returns to Inactive.
func (f *FSM) Stop() {
	f.enabled = false
	f.ticker.Disarm()
	f.wake.Disarm()
	f.scanner.Release()
	if f.state != ScanInactive {
		slog.Debug("[SCAN] stopped", "from", f.state)
	}
	f.state = ScanInactive
}

// Step advances the FSM for one wake reason. Reasons a state does not wait
// on are ignored.
func (f *FSM) Step(reason WakeReason) {
	switch f.state {
	case ScanInactive:
		if !f.enabled {
			return
		}
		f.scanner.SetupIdle()
		f.armEdge()
		f.state = ScanIdle

	case ScanIdle:
		if reason != WakeEdge {
			return
		}
		f.wake.Disarm()
		f.beginPass()
		f.state = ScanScanning

	case ScanScanning:
		if reason != WakeTick {
			return
		}
		if f.scanner.ScanTick() {
			f.state = ScanStatusUpdate
		}

	case ScanStatusUpdate:
		if f.scanner.PostScanUpdate() {
			f.beginPass()
			f.state = ScanScanning
			return
		}
		f.ticker.Disarm()
		f.armEdge()
		f.state = ScanIdle
	}
}

func (f *FSM) beginPass() {
	f.scanner.BeginPass()
	f.ticker.Arm(f.scanner.NextTickTicks())
}

func (f *FSM) armEdge() {
	f.wake.ArmEdge(f.scanner.ColumnMask(), PolarityLow, f.wakeDebounce)
}
