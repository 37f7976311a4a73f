package conn

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blekbd/internal/timer"
)

// ErrUnexpectedEvent is returned when an event has no transition in the
// current state. It means a collaborator broke the protocol contract and the
// device must reset.
var ErrUnexpectedEvent = errors.New("conn: unexpected event")

// AdvParams describes one advertising run.
type AdvParams struct {
	// Directed advertising targets Peer only.
	Directed bool
	// Discoverable advertising lets new hosts find and pair with the device.
	Discoverable bool
	Interval     time.Duration
	Peer         string
}

// Link is the radio side of the connection.
type Link interface {
	StartAdvertising(p AdvParams) error
	StopAdvertising() error
	Disconnect() error
	SubmitPasskey(passkey uint32) error
}

// HostStore tracks the bonded host of the selected slot.
type HostStore interface {
	// Active returns the peer of the selected slot. bonded is true only
	// when the peer has a durable identity.
	Active() (peer string, bonded bool)
	// Remember records the host that just connected on the selected slot.
	Remember(peer string, durable bool) error
	// Forget clears the selected slot.
	Forget() error
	// Next selects the following slot and returns its index.
	Next() int
}

// Actions are the side effects the lifecycle has on scanning and reporting.
type Actions interface {
	// Flush discards queued key events and pending reports and releases
	// every key the host last saw down.
	Flush()
	// ResetSession flushes and also drops debounce and roll-over state.
	ResetSession()
	// SetPasskeyMode routes digit keys to passkey entry instead of reports.
	SetPasskeyMode(on bool)
	// SuspendScanning stops or resumes the matrix scan.
	SuspendScanning(suspend bool)
}

// Config holds the advertising intervals and timeouts. A zero
// InactivityTimeout disables the inactivity timer.
type Config struct {
	UnbondedInterval    time.Duration
	BondedInterval      time.Duration
	DirectedInterval    time.Duration
	DiscoverableTimeout time.Duration
	DirectedTimeout     time.Duration
	PairingTimeout      time.Duration
	InactivityTimeout   time.Duration
}

// FSM is the connection lifecycle state machine. It is not safe for
// concurrent use; all events go through Post on the keyboard loop.
type FSM struct {
	cfg     Config
	link    Link
	hosts   HostStore
	actions Actions
	timers  *timer.Service

	state State
	spota bool
	// disconnecting is set while a disconnect the FSM already acted on
	// awaits the link's confirmation.
	disconnecting bool

	onTransition func(from, to State, ev Event)
	onFatal      func(error)
}

// NewFSM creates a connection FSM in the Idle state.
func NewFSM(cfg Config, link Link, hosts HostStore, actions Actions, timers *timer.Service) *FSM {
	if link == nil || hosts == nil || actions == nil || timers == nil {
		panic("conn: NewFSM called with nil collaborator")
	}
	return &FSM{cfg: cfg, link: link, hosts: hosts, actions: actions, timers: timers}
}

// OnTransition registers a callback for every state change.
func (f *FSM) OnTransition(cb func(from, to State, ev Event)) { f.onTransition = cb }

// OnFatal registers the watchdog hook called with ErrUnexpectedEvent.
func (f *FSM) OnFatal(cb func(error)) { f.onFatal = cb }

// State returns the current state.
func (f *FSM) State() State { return f.state }

// Bonded reports whether the selected slot holds a durable bonded host.
func (f *FSM) Bonded() bool {
	_, bonded := f.hosts.Active()
	return bonded
}

// Spota reports whether a firmware update has suspended scanning.
func (f *FSM) Spota() bool { return f.spota }

// Wake leaves DisconnectedIdle on a wake edge and starts reconnecting. It is
// a no-op in every other state.
func (f *FSM) Wake() error {
	if f.state != StateDisconnectedIdle {
		return nil
	}
	f.transition(StateDisconnectedInit, Ev(NoEvent))
	return f.Post(Ev(NoEvent))
}

// Post delivers one event. An event with no transition in the current state
// returns ErrUnexpectedEvent after calling the fatal hook.
func (f *FSM) Post(ev Event) error {
	if ev.Kind != NoEvent && ev.Kind != KeyPress {
		slog.Debug("[CONN] event", "state", f.state, "event", ev.Kind)
	}

	if ev.Kind == KeyPress && f.state > StateConnected {
		return nil
	}

	var handled bool
	switch f.state {
	case StateIdle:
		handled = f.idle(ev)
	case StateAdvertise:
		handled = f.advertise(ev)
	case StateDirectedAdvertise:
		handled = f.directedAdvertise(ev)
	case StateConnectionInProgress:
		handled = f.connectionInProgress(ev)
	case StateConnectedPairing:
		handled = f.connectedPairing(ev)
	case StateConnected:
		handled = f.connected(ev)
	case StateDisconnectedIdle:
		handled = f.disconnectedIdle(ev)
	case StateDisconnectedInit:
		handled = f.disconnectedInit(ev)
	}
	if handled {
		return nil
	}

	err := fmt.Errorf("%w: %s in state %s", ErrUnexpectedEvent, ev.Kind, f.state)
	slog.Error("[CONN] protocol violation", "state", f.state, "event", ev.Kind)
	if f.onFatal != nil {
		f.onFatal(err)
	}
	return err
}

func (f *FSM) idle(ev Event) bool {
	switch ev.Kind {
	case NoEvent:
	case KeyPress:
		f.advertiseForTarget(ev)
	case Disconnected:
		return f.confirmDisconnect()
	case PairingRequested:
		f.advertiseDiscoverable(ev)
	case NewHost:
		f.forget()
		f.advertiseDiscoverable(ev)
	case HostSwitch:
		f.selectNext()
		f.advertiseForTarget(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) advertise(ev Event) bool {
	switch ev.Kind {
	case NoEvent, KeyPress:
	case Disconnected:
		return f.confirmDisconnect()
	case ConnectionRequested:
		f.disconnecting = false
		f.cancelAdvertisingTimers()
		f.transition(StateConnectionInProgress, ev)
	case AdvertisingTimerExpired:
		f.stopAdvertising()
		f.transition(StateIdle, ev)
	case HostSwitch, NewHost:
		f.retarget(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) directedAdvertise(ev Event) bool {
	switch ev.Kind {
	case NoEvent:
	case Disconnected:
		return f.confirmDisconnect()
	case ConnectionRequested:
		f.disconnecting = false
		f.cancelAdvertisingTimers()
		f.transition(StateConnectionInProgress, ev)
	case AdvertisingTimerExpired:
		// Directed attempt failed; keep the bonded host reachable with slower
		// undirected advertising.
		peer, _ := f.hosts.Active()
		f.stopAdvertising()
		f.startAdvertising(AdvParams{Interval: f.cfg.BondedInterval, Peer: peer})
		f.timers.Arm(timer.Discoverability, f.cfg.DiscoverableTimeout)
		f.transition(StateAdvertise, ev)
	case HostSwitch, NewHost:
		f.retarget(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) connectionInProgress(ev Event) bool {
	switch ev.Kind {
	case NoEvent, KeyPress, ConnParamsUpdated:
	case PairingRequested:
		f.enterPairing(ev)
	case ConnectionComplete:
		f.remember(ev)
		f.armInactivity()
		f.transition(StateConnected, ev)
	case Disconnected:
		f.actions.ResetSession()
		f.advertiseForTarget(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) connectedPairing(ev Event) bool {
	switch ev.Kind {
	case NoEvent, KeyPress, ConnParamsUpdated:
	case PasskeyEntered:
		if err := f.link.SubmitPasskey(ev.Passkey); err != nil {
			slog.Error("[CONN] submitting passkey failed", "error", err)
		}
		f.timers.Arm(timer.Pairing, f.cfg.PairingTimeout)
	case TimerExpired:
		slog.Warn("[CONN] pairing timed out, disconnecting")
		f.disconnect()
	case ConnectionComplete:
		f.timers.Cancel(timer.Pairing)
		f.actions.SetPasskeyMode(false)
		f.actions.Flush()
		f.remember(ev)
		f.armInactivity()
		f.transition(StateConnected, ev)
	case Disconnected:
		f.linkLost(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) connected(ev Event) bool {
	switch ev.Kind {
	case NoEvent, ConnParamsUpdated:
	case KeyPress:
		if !f.spota {
			f.armInactivity()
		}
	case InactivityTimerExpired:
		slog.Info("[CONN] inactivity timeout, disconnecting")
		f.cancelConnectionTimers()
		f.disconnect()
		f.disconnecting = true
		f.actions.ResetSession()
		f.transition(StateDisconnectedIdle, ev)
	case PairingRequested:
		f.timers.Cancel(timer.Inactivity)
		f.enterPairing(ev)
	case SpotaStart:
		f.spota = true
		f.timers.Cancel(timer.Inactivity)
		f.actions.SuspendScanning(true)
	case SpotaEnd:
		f.spota = false
		f.actions.SuspendScanning(false)
		f.armInactivity()
	case HostSwitch:
		f.selectNext()
		f.disconnect()
	case NewHost:
		f.forget()
		f.disconnect()
	case Disconnected:
		f.linkLost(ev)
	default:
		return false
	}
	return true
}

func (f *FSM) disconnectedIdle(ev Event) bool {
	switch ev.Kind {
	case NoEvent:
	case Disconnected:
		f.disconnecting = false
	default:
		return false
	}
	return true
}

func (f *FSM) disconnectedInit(ev Event) bool {
	switch ev.Kind {
	case NoEvent:
		f.advertiseForTarget(ev)
	case Disconnected:
		f.disconnecting = false
	default:
		return false
	}
	return true
}

// confirmDisconnect absorbs the link's late confirmation of the inactivity
// disconnect once the FSM has already woken and moved on. Any other
// Disconnected in these states is a protocol violation.
func (f *FSM) confirmDisconnect() bool {
	if !f.disconnecting {
		return false
	}
	f.disconnecting = false
	slog.Debug("[CONN] late disconnect confirmed", "state", f.state)
	return true
}

// advertiseForTarget starts reconnection advertising for the selected slot:
// directed when its host is bonded, discoverable otherwise.
func (f *FSM) advertiseForTarget(ev Event) {
	peer, bonded := f.hosts.Active()
	if !bonded {
		f.advertiseDiscoverable(ev)
		return
	}
	f.startAdvertising(AdvParams{Directed: true, Interval: f.cfg.DirectedInterval, Peer: peer})
	f.timers.Arm(timer.Advertising, f.cfg.DirectedTimeout)
	f.transition(StateDirectedAdvertise, ev)
}

func (f *FSM) advertiseDiscoverable(ev Event) {
	f.startAdvertising(AdvParams{Discoverable: true, Interval: f.cfg.UnbondedInterval})
	f.timers.Arm(timer.Discoverability, f.cfg.DiscoverableTimeout)
	f.transition(StateAdvertise, ev)
}

// retarget restarts advertising after the target slot changed.
func (f *FSM) retarget(ev Event) {
	f.cancelAdvertisingTimers()
	f.stopAdvertising()
	if ev.Kind == NewHost {
		f.forget()
		f.advertiseDiscoverable(ev)
		return
	}
	f.selectNext()
	f.advertiseForTarget(ev)
}

func (f *FSM) enterPairing(ev Event) {
	f.actions.Flush()
	f.actions.SetPasskeyMode(true)
	f.timers.Arm(timer.Pairing, f.cfg.PairingTimeout)
	f.transition(StateConnectedPairing, ev)
}

// linkLost handles a disconnect of an established link.
func (f *FSM) linkLost(ev Event) {
	f.cancelConnectionTimers()
	f.actions.SetPasskeyMode(false)
	if f.spota {
		f.spota = false
		f.actions.SuspendScanning(false)
	}
	f.actions.ResetSession()
	f.advertiseForTarget(ev)
}

func (f *FSM) remember(ev Event) {
	if err := f.hosts.Remember(ev.Peer, ev.Durable); err != nil {
		slog.Error("[CONN] recording host failed", "peer", ev.Peer, "error", err)
	}
}

func (f *FSM) forget() {
	if err := f.hosts.Forget(); err != nil {
		slog.Error("[CONN] forgetting host failed", "error", err)
	}
}

func (f *FSM) selectNext() {
	slot := f.hosts.Next()
	slog.Info("[CONN] host slot selected", "slot", slot)
}

func (f *FSM) armInactivity() {
	if f.cfg.InactivityTimeout > 0 {
		f.timers.Arm(timer.Inactivity, f.cfg.InactivityTimeout)
	}
}

func (f *FSM) cancelAdvertisingTimers() {
	f.timers.Cancel(timer.Advertising)
	f.timers.Cancel(timer.Discoverability)
}

func (f *FSM) cancelConnectionTimers() {
	f.timers.Cancel(timer.Pairing)
	f.timers.Cancel(timer.Inactivity)
}

func (f *FSM) startAdvertising(p AdvParams) {
	if err := f.link.StartAdvertising(p); err != nil {
		slog.Error("[CONN] start advertising failed", "directed", p.Directed, "error", err)
	}
}

func (f *FSM) stopAdvertising() {
	if err := f.link.StopAdvertising(); err != nil {
		slog.Error("[CONN] stop advertising failed", "error", err)
	}
}

func (f *FSM) disconnect() {
	if err := f.link.Disconnect(); err != nil {
		slog.Error("[CONN] disconnect failed", "error", err)
	}
}

func (f *FSM) transition(to State, ev Event) {
	from := f.state
	if from == to {
		return
	}
	f.state = to
	slog.Info("[CONN] state change", "from", from, "to", to, "event", ev.Kind)
	if f.onTransition != nil {
		f.onTransition(from, to, ev)
	}
}
