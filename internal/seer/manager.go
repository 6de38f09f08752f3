package seer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Manager Errors
// -------------------------------------------------------------------------

// Sentinel errors for Manager operations.
var (
	// ErrDuplicateVehicle indicates a vehicle is already registered.
	ErrDuplicateVehicle = errors.New("duplicate vehicle serial")

	// ErrVehicleNotFound indicates no vehicle exists for the given serial.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrPortNotConfigured indicates the vehicle has no session for the
	// requested port role.
	ErrPortNotConfigured = errors.New("port role not configured for vehicle")

	// ErrInvalidHost indicates an empty vehicle host.
	ErrInvalidHost = errors.New("host must not be empty")

	// ErrNoPorts indicates a vehicle config without any port roles.
	ErrNoPorts = errors.New("at least one port role must be configured")
)

// -------------------------------------------------------------------------
// Manager Constants
// -------------------------------------------------------------------------

const (
	// scanInterval is how often the reconnect scan walks the failed set.
	scanInterval = 30 * time.Second

	// staleAfter is how long a connected state-push session may stay
	// silent before the watchdog tears the vehicle down.
	staleAfter = 30 * time.Second

	// staleCheckInterval is how often the watchdog samples push timestamps.
	staleCheckInterval = 10 * time.Second

	// notifyChSize buffers port-level state changes. Sized for bursts of
	// simultaneous transitions across a fleet without blocking sessions.
	notifyChSize = 64

	// inboundChSize buffers decoded vehicle frames between the receive
	// loops and the supervisor. State pushes arrive every few hundred
	// milliseconds per vehicle; the supervisor drains far faster.
	inboundChSize = 256

	// vehicleEventChSize buffers vehicle-level online/offline edges.
	vehicleEventChSize = 16
)

// -------------------------------------------------------------------------
// Vehicle Configuration
// -------------------------------------------------------------------------

// VehicleConfig describes one AGV's TCP endpoints for session creation.
type VehicleConfig struct {
	// Serial is the vehicle serial number (unique per fleet).
	Serial string

	// Nickname is the controller identity used in authority claims.
	Nickname string

	// Host is the vehicle's IP address or hostname.
	Host string

	// Ports maps each configured port role to its TCP port on Host.
	// Roles absent from the map get no session.
	Ports map[PortRole]uint16

	// DialTimeout bounds each connection attempt. Zero means the default.
	DialTimeout time.Duration
}

// -------------------------------------------------------------------------
// Vehicle Events — aggregate connection edges
// -------------------------------------------------------------------------

// VehicleEventKind classifies a vehicle-level connection edge.
type VehicleEventKind uint8

const (
	// VehicleOnline means the first port of a previously-down vehicle
	// connected.
	VehicleOnline VehicleEventKind = iota + 1

	// VehicleOffline means the last connected port of a vehicle went away.
	VehicleOffline

	// VehicleStale means the watchdog tore the vehicle down because its
	// state-push port stopped delivering frames while looking connected.
	VehicleStale
)

// String returns the human-readable name of the event kind.
func (k VehicleEventKind) String() string {
	switch k {
	case VehicleOnline:
		return "Online"
	case VehicleOffline:
		return "Offline"
	case VehicleStale:
		return "Stale"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// VehicleEvent is emitted when a vehicle's aggregate connection state
// changes. The aggregate is up while at least one port session is
// connected. Consumers drive the VDA connection topic and the factsheet
// publish from these edges.
type VehicleEvent struct {
	// Serial is the vehicle serial.
	Serial string

	// Kind is the edge that occurred.
	Kind VehicleEventKind

	// Timestamp is when the edge was detected.
	Timestamp time.Time
}

// -------------------------------------------------------------------------
// Snapshots — read-only views for external consumers
// -------------------------------------------------------------------------

// PortSnapshot is a read-only view of one port session at a point in time.
// All fields are copied; no references to mutable state are held.
type PortSnapshot struct {
	// Serial is the vehicle serial.
	Serial string

	// Role is the vendor port role.
	Role PortRole

	// Address is the vehicle endpoint in host:port form.
	Address string

	// State is the session FSM state (atomic snapshot).
	State SessionState

	// FramesSent is the total frames written to the vehicle.
	FramesSent uint64

	// FramesReceived is the total frames decoded from the vehicle.
	FramesReceived uint64

	// ResyncDiscarded is the total stream bytes skipped during resync.
	ResyncDiscarded uint64

	// StateTransitions is the total FSM transitions.
	StateTransitions uint64

	// LastStateChange is the timestamp of the most recent transition.
	LastStateChange time.Time

	// LastFrameReceived is the timestamp of the most recent frame.
	LastFrameReceived time.Time
}

// VehicleSnapshot is a read-only view of one vehicle and its port sessions.
type VehicleSnapshot struct {
	// Serial is the vehicle serial.
	Serial string

	// Nickname is the configured authority identity.
	Nickname string

	// Online is the aggregate state: at least one port connected.
	Online bool

	// Failed is true while the vehicle waits for the reconnect scan.
	Failed bool

	// Ports holds one snapshot per configured port role, ordered by role.
	Ports []PortSnapshot
}

// -------------------------------------------------------------------------
// Manager
// -------------------------------------------------------------------------

// vehicleEntry holds one vehicle's sessions and their shared lifetime.
type vehicleEntry struct {
	serial   string
	nick     string
	sessions map[PortRole]*PortSession

	// ctx is the decoupled lifetime shared by all receive loops of this
	// vehicle. Stored because the reconnect scan re-opens sessions long
	// after AddVehicle returned.
	ctx    context.Context //nolint:containedctx // reconnect scans reuse it
	cancel context.CancelFunc
}

// ManagerOption configures optional Manager parameters.
type ManagerOption func(*Manager)

// WithManagerMetrics sets the MetricsReporter for the manager and all
// sessions it creates. If mr is nil, a no-op reporter is used.
func WithManagerMetrics(mr MetricsReporter) ManagerOption {
	return func(m *Manager) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// Manager owns all vehicle port sessions, runs the reconnect scan and the
// staleness watchdog, and aggregates per-port state changes into
// vehicle-level connection edges.
//
// Connection policy:
//
//  1. AddVehicle dials every configured port once. Any port connecting
//     puts the vehicle online; all ports failing puts its serial in the
//     failed set.
//  2. The reconnect scan walks the failed set every 30 seconds and
//     re-dials all port roles of each failed vehicle in parallel.
//  3. A vehicle whose last connected port dies re-enters the failed set
//     through the dispatch pump.
//  4. The watchdog tears down vehicles whose state-push port looks
//     connected but has delivered nothing for 30 seconds; the teardown
//     surfaces as a VehicleStale edge instead of a plain offline.
type Manager struct {
	mu sync.RWMutex

	// vehicles indexed by serial.
	vehicles map[string]*vehicleEntry

	// failed holds serials with no connected port, awaiting the scan.
	failed map[string]struct{}

	// online tracks the per-vehicle aggregate for edge detection.
	online map[string]bool

	// stale marks vehicles torn down by the watchdog so the resulting
	// aggregate-down edge is reported as VehicleStale.
	stale map[string]struct{}

	dialer Dialer

	// metrics is the optional metrics reporter. Never nil -- uses
	// noopMetrics when no collector is configured.
	metrics MetricsReporter

	// rawNotifyCh receives state changes from all sessions. The dispatch
	// pump reads from it, maintains the failed set and the aggregates,
	// and forwards to publicNotifyCh.
	rawNotifyCh chan StateChange

	// publicNotifyCh is the fan-out channel exposed via StateChanges().
	publicNotifyCh chan StateChange

	// inboundCh carries decoded frames from all sessions to the consumer.
	inboundCh chan InboundFrame

	// vehicleEventCh carries aggregate connection edges.
	vehicleEventCh chan VehicleEvent

	logger *slog.Logger
}

// NewManager creates a new session manager. dialer is used for every
// connection attempt; netio provides the production implementation.
func NewManager(dialer Dialer, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if dialer == nil {
		return nil, fmt.Errorf("new manager: %w", ErrNilDialer)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		vehicles:       make(map[string]*vehicleEntry),
		failed:         make(map[string]struct{}),
		online:         make(map[string]bool),
		stale:          make(map[string]struct{}),
		dialer:         dialer,
		metrics:        noopMetrics{},
		rawNotifyCh:    make(chan StateChange, notifyChSize),
		publicNotifyCh: make(chan StateChange, notifyChSize),
		inboundCh:      make(chan InboundFrame, inboundChSize),
		vehicleEventCh: make(chan VehicleEvent, vehicleEventChSize),
		logger:         logger.With(slog.String("component", "seer.manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// -------------------------------------------------------------------------
// Vehicle CRUD — Add
// -------------------------------------------------------------------------

// AddVehicle registers a vehicle and dials every configured port once.
//
// The call returns after all initial dials finished (each bounded by the
// dial timeout). Connection failures are not errors: the vehicle lands in
// the failed set and the reconnect scan keeps trying. The error return
// covers registration problems only (duplicate serial, invalid config).
func (m *Manager) AddVehicle(ctx context.Context, cfg VehicleConfig) error {
	if err := validateVehicleConfig(cfg); err != nil {
		return err
	}

	entry, err := m.buildVehicle(ctx, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, dup := m.vehicles[cfg.Serial]; dup {
		m.mu.Unlock()
		entry.cancel()
		return fmt.Errorf("add vehicle %s: %w", cfg.Serial, ErrDuplicateVehicle)
	}
	m.vehicles[cfg.Serial] = entry
	m.mu.Unlock()

	for role := range entry.sessions {
		m.metrics.RegisterSession(cfg.Serial, role.String())
	}

	m.logger.Info("vehicle added",
		slog.String("serial", cfg.Serial),
		slog.String("host", cfg.Host),
		slog.Int("ports", len(entry.sessions)),
	)

	if opened := m.openAllRoles(entry); opened == 0 {
		m.mu.Lock()
		m.failed[cfg.Serial] = struct{}{}
		m.mu.Unlock()
		m.logger.Warn("vehicle unreachable, queued for reconnect scan",
			slog.String("serial", cfg.Serial),
		)
	}

	return nil
}

// validateVehicleConfig checks the required VehicleConfig fields.
func validateVehicleConfig(cfg VehicleConfig) error {
	if cfg.Serial == "" {
		return fmt.Errorf("add vehicle: %w", ErrInvalidSerial)
	}
	if cfg.Host == "" {
		return fmt.Errorf("add vehicle %s: %w", cfg.Serial, ErrInvalidHost)
	}
	if len(cfg.Ports) == 0 {
		return fmt.Errorf("add vehicle %s: %w", cfg.Serial, ErrNoPorts)
	}
	for role := range cfg.Ports {
		if int(role) >= len(roleNames) {
			return fmt.Errorf("add vehicle %s: %w: %d", cfg.Serial, ErrInvalidRole, role)
		}
	}
	return nil
}

// buildVehicle constructs the per-role sessions for a vehicle.
//
// The session lifetime is decoupled from the caller's context so that
// signal-driven cancellation in the caller does not abort receive loops
// mid-shutdown; RemoveVehicle and Close cancel each vehicle explicitly.
func (m *Manager) buildVehicle(ctx context.Context, cfg VehicleConfig) (*vehicleEntry, error) {
	vehCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	entry := &vehicleEntry{
		serial:   cfg.Serial,
		nick:     cfg.Nickname,
		sessions: make(map[PortRole]*PortSession, len(cfg.Ports)),
		ctx:      vehCtx,
		cancel:   cancel,
	}

	for role, port := range cfg.Ports {
		sess, err := NewPortSession(
			PortConfig{
				Serial:      cfg.Serial,
				Role:        role,
				Address:     fmt.Sprintf("%s:%d", cfg.Host, port),
				Nickname:    cfg.Nickname,
				DialTimeout: cfg.DialTimeout,
			},
			m.dialer,
			m.inboundCh,
			m.rawNotifyCh,
			m.logger,
			WithPortMetrics(m.metrics),
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("add vehicle %s: %w", cfg.Serial, err)
		}
		entry.sessions[role] = sess
	}

	return entry, nil
}

// openAllRoles dials every openable port of a vehicle in parallel and
// returns how many came up.
func (m *Manager) openAllRoles(entry *vehicleEntry) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	opened := 0

	for _, sess := range entry.sessions {
		switch sess.State() {
		case StateConnected, StateConnecting:
			continue
		case StateDisconnected, StateFailed:
		}

		wg.Add(1)
		go func(sess *PortSession) {
			defer wg.Done()
			if err := sess.Open(entry.ctx); err != nil {
				m.logger.Debug("port open failed",
					slog.String("serial", entry.serial),
					slog.String("role", sess.Role().String()),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			opened++
			mu.Unlock()
		}(sess)
	}
	wg.Wait()

	return opened
}

// -------------------------------------------------------------------------
// Vehicle CRUD — Remove
// -------------------------------------------------------------------------

// RemoveVehicle shuts down and unregisters all sessions of a vehicle.
//
// The vehicle is deleted from the maps before the sockets close, so the
// dispatch pump emits no offline edge for it; callers that need a farewell
// publish (supervisor shutdown, fleet reload) handle that themselves.
func (m *Manager) RemoveVehicle(ctx context.Context, serial string) error {
	m.mu.Lock()
	entry, ok := m.vehicles[serial]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove vehicle %s: %w", serial, ErrVehicleNotFound)
	}
	delete(m.vehicles, serial)
	delete(m.failed, serial)
	delete(m.online, serial)
	delete(m.stale, serial)
	m.mu.Unlock()

	m.teardownVehicle(ctx, entry)

	m.logger.Info("vehicle removed", slog.String("serial", serial))

	return nil
}

// teardownVehicle closes all sessions of a vehicle and releases metrics.
func (m *Manager) teardownVehicle(ctx context.Context, entry *vehicleEntry) {
	for role, sess := range entry.sessions {
		sess.Shutdown(ctx)
		m.metrics.UnregisterSession(entry.serial, role.String())
	}
	entry.cancel()
}

// -------------------------------------------------------------------------
// Send — downlink command routing
// -------------------------------------------------------------------------

// Send writes one command frame to the given port of the given vehicle.
func (m *Manager) Send(
	ctx context.Context,
	serial string,
	role PortRole,
	msgType MessageType,
	body any,
) error {
	m.mu.RLock()
	entry, ok := m.vehicles[serial]
	var sess *PortSession
	if ok {
		sess = entry.sessions[role]
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send %s to %s: %w", msgType, serial, ErrVehicleNotFound)
	}
	if sess == nil {
		return fmt.Errorf("send %s to %s/%s: %w", msgType, serial, role, ErrPortNotConfigured)
	}

	return sess.Send(ctx, msgType, body)
}

// -------------------------------------------------------------------------
// Dispatch Pump — failed set and aggregate edges
// -------------------------------------------------------------------------

// RunDispatch reads state changes from all sessions, maintains the failed
// set and the per-vehicle aggregates, and forwards every change to the
// public StateChanges channel.
//
// This goroutine MUST be running for vehicle events and state change
// notifications to reach consumers. Without it, the raw channel fills up
// and sessions drop notifications.
//
// Blocks until ctx is cancelled.
func (m *Manager) RunDispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sc := <-m.rawNotifyCh:
			m.handleStateChange(sc)

			select {
			case m.publicNotifyCh <- sc:
			default:
				m.logger.Warn("public notification channel full, dropping state change",
					slog.String("serial", sc.Serial),
					slog.String("new_state", sc.NewState.String()),
				)
			}
		}
	}
}

// handleStateChange recomputes the vehicle aggregate after a port
// transition and emits an edge event when it flipped.
func (m *Manager) handleStateChange(sc StateChange) {
	m.mu.Lock()

	entry, ok := m.vehicles[sc.Serial]
	if !ok {
		// Vehicle was removed while the change was in flight.
		m.mu.Unlock()
		return
	}

	anyUp := false
	for _, sess := range entry.sessions {
		if sess.State() == StateConnected {
			anyUp = true
			break
		}
	}

	var ev *VehicleEvent
	wasOnline := m.online[sc.Serial]
	switch {
	case anyUp && !wasOnline:
		m.online[sc.Serial] = true
		delete(m.failed, sc.Serial)
		delete(m.stale, sc.Serial)
		ev = &VehicleEvent{Serial: sc.Serial, Kind: VehicleOnline, Timestamp: time.Now()}

	case !anyUp && wasOnline:
		m.online[sc.Serial] = false
		m.failed[sc.Serial] = struct{}{}
		kind := VehicleOffline
		if _, tornDown := m.stale[sc.Serial]; tornDown {
			delete(m.stale, sc.Serial)
			kind = VehicleStale
		}
		ev = &VehicleEvent{Serial: sc.Serial, Kind: kind, Timestamp: time.Now()}
	}
	m.mu.Unlock()

	if ev == nil {
		return
	}

	m.logger.Info("vehicle aggregate changed",
		slog.String("serial", ev.Serial),
		slog.String("edge", ev.Kind.String()),
	)
	select {
	case m.vehicleEventCh <- *ev:
	default:
		m.logger.Warn("vehicle event channel full, dropping edge",
			slog.String("serial", ev.Serial),
			slog.String("edge", ev.Kind.String()),
		)
	}
}

// -------------------------------------------------------------------------
// Reconnect Scan
// -------------------------------------------------------------------------

// RunReconnect re-dials failed vehicles every scan interval.
//
// All port roles of each failed vehicle are attempted in parallel; a
// vehicle with at least one success leaves the failed set (the dispatch
// pump also removes it on the resulting connected edge).
//
// Blocks until ctx is cancelled.
func (m *Manager) RunReconnect(ctx context.Context) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scanFailed()
		}
	}
}

// scanFailed runs one pass over the failed set. Each dial is bounded by
// the session dial timeout, so a pass finishes well inside the interval.
func (m *Manager) scanFailed() {
	m.mu.RLock()
	entries := make([]*vehicleEntry, 0, len(m.failed))
	for serial := range m.failed {
		if entry, ok := m.vehicles[serial]; ok {
			entries = append(entries, entry)
		}
	}
	m.mu.RUnlock()

	if len(entries) == 0 {
		return
	}
	m.logger.Debug("reconnect scan", slog.Int("failed", len(entries)))

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry *vehicleEntry) {
			defer wg.Done()
			m.metrics.IncReconnectAttempts(entry.serial)

			if opened := m.openAllRoles(entry); opened > 0 {
				m.mu.Lock()
				delete(m.failed, entry.serial)
				m.mu.Unlock()
				m.logger.Info("vehicle reconnected",
					slog.String("serial", entry.serial),
					slog.Int("ports_opened", opened),
				)
			}
		}(entry)
	}
	wg.Wait()
}

// -------------------------------------------------------------------------
// Staleness Watchdog
// -------------------------------------------------------------------------

// RunWatchdog tears down vehicles whose state-push port looks connected
// but has stopped delivering frames.
//
// A half-dead TCP connection (vehicle power loss, cable pull) can sit in
// Connected for minutes before the kernel notices. The vehicle pushes
// state several times a second when alive, so silence on the push port is
// the reliable liveness signal. Torn-down vehicles re-enter the dial path
// through the failed set, and the resulting down edge is reported as
// VehicleStale.
//
// Blocks until ctx is cancelled.
func (m *Manager) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkStale(ctx)
		}
	}
}

// checkStale runs one staleness pass over all vehicles.
func (m *Manager) checkStale(ctx context.Context) {
	now := time.Now()

	m.mu.RLock()
	var victims []*vehicleEntry
	for _, entry := range m.vehicles {
		if m.isStaleLocked(entry, now) {
			victims = append(victims, entry)
		}
	}
	m.mu.RUnlock()

	for _, entry := range victims {
		m.logger.Warn("state push stale, tearing vehicle down",
			slog.String("serial", entry.serial),
			slog.Duration("timeout", staleAfter),
		)

		m.mu.Lock()
		m.stale[entry.serial] = struct{}{}
		m.failed[entry.serial] = struct{}{}
		m.mu.Unlock()

		for _, sess := range entry.sessions {
			sess.Shutdown(ctx)
		}
	}
}

// isStaleLocked reports whether a vehicle's state-push session is
// connected but silent past the staleness timeout. Callers must hold
// m.mu (read or write).
func (m *Manager) isStaleLocked(entry *vehicleEntry, now time.Time) bool {
	sp := entry.sessions[RoleStatePush]
	if sp == nil || sp.State() != StateConnected {
		return false
	}

	// Fresh connections without a push yet count from the connect time.
	last := sp.LastFrameReceived()
	if last.IsZero() {
		last = sp.LastStateChange()
	}
	return !last.IsZero() && now.Sub(last) > staleAfter
}

// -------------------------------------------------------------------------
// Reconciliation — fleet config reload
// -------------------------------------------------------------------------

// ReconcileVehicles diffs the desired vehicle set against the current one.
// Missing vehicles are added (with an initial dial pass), removed vehicles
// are shut down. Existing vehicles are left untouched; endpoint changes
// for a live vehicle require a remove and re-add cycle.
//
// Returns the number of vehicles added and removed. Partial failures are
// accumulated; reconciliation continues for the rest of the set.
func (m *Manager) ReconcileVehicles(
	ctx context.Context,
	desired []VehicleConfig,
) (int, int, error) {
	desiredBySerial := make(map[string]VehicleConfig, len(desired))
	for _, cfg := range desired {
		desiredBySerial[cfg.Serial] = cfg
	}

	current := m.Serials()

	var added, removed int
	var errs []error

	for _, serial := range current {
		if _, want := desiredBySerial[serial]; want {
			continue
		}
		m.logger.Info("reconcile: removing vehicle", slog.String("serial", serial))
		if err := m.RemoveVehicle(ctx, serial); err != nil {
			errs = append(errs, fmt.Errorf("reconcile remove %s: %w", serial, err))
			continue
		}
		removed++
	}

	currentSet := make(map[string]struct{}, len(current))
	for _, serial := range current {
		currentSet[serial] = struct{}{}
	}
	for serial, cfg := range desiredBySerial {
		if _, exists := currentSet[serial]; exists {
			continue
		}
		m.logger.Info("reconcile: adding vehicle", slog.String("serial", serial))
		if err := m.AddVehicle(ctx, cfg); err != nil {
			errs = append(errs, fmt.Errorf("reconcile add %s: %w", serial, err))
			continue
		}
		added++
	}

	var err error
	if len(errs) > 0 {
		err = errors.Join(errs...)
	}

	m.logger.Info("vehicle reconciliation complete",
		slog.Int("added", added),
		slog.Int("removed", removed),
	)

	return added, removed, err
}

// -------------------------------------------------------------------------
// Snapshots and Accessors
// -------------------------------------------------------------------------

// Serials returns the serials of all registered vehicles, sorted.
func (m *Manager) Serials() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	serials := make([]string, 0, len(m.vehicles))
	for serial := range m.vehicles {
		serials = append(serials, serial)
	}
	slices.Sort(serials)
	return serials
}

// Online reports the aggregate connection state of a vehicle.
func (m *Manager) Online(serial string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online[serial]
}

// Vehicles returns a snapshot of all vehicles sorted by serial. The
// returned data contains copies only; it is safe to serialize without
// further locking.
func (m *Manager) Vehicles() []VehicleSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make([]VehicleSnapshot, 0, len(m.vehicles))
	for serial, entry := range m.vehicles {
		snapshots = append(snapshots, m.snapshotLocked(serial, entry))
	}
	slices.SortFunc(snapshots, func(a, b VehicleSnapshot) int {
		return strings.Compare(a.Serial, b.Serial)
	})
	return snapshots
}

// Vehicle returns a snapshot of one vehicle.
func (m *Manager) Vehicle(serial string) (VehicleSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.vehicles[serial]
	if !ok {
		return VehicleSnapshot{}, false
	}
	return m.snapshotLocked(serial, entry), true
}

// snapshotLocked builds a VehicleSnapshot. Callers must hold m.mu.
func (m *Manager) snapshotLocked(serial string, entry *vehicleEntry) VehicleSnapshot {
	_, failed := m.failed[serial]
	vs := VehicleSnapshot{
		Serial:   serial,
		Nickname: entry.nick,
		Online:   m.online[serial],
		Failed:   failed,
		Ports:    make([]PortSnapshot, 0, len(entry.sessions)),
	}

	for _, sess := range entry.sessions {
		vs.Ports = append(vs.Ports, PortSnapshot{
			Serial:            sess.Serial(),
			Role:              sess.Role(),
			Address:           sess.Address(),
			State:             sess.State(),
			FramesSent:        sess.FramesSent(),
			FramesReceived:    sess.FramesReceived(),
			ResyncDiscarded:   sess.ResyncDiscarded(),
			StateTransitions:  sess.StateTransitions(),
			LastStateChange:   sess.LastStateChange(),
			LastFrameReceived: sess.LastFrameReceived(),
		})
	}
	slices.SortFunc(vs.Ports, func(a, b PortSnapshot) int {
		return int(a.Role) - int(b.Role)
	})

	return vs
}

// InboundFrames returns the channel carrying decoded frames from all
// sessions. The supervisor is the single consumer.
func (m *Manager) InboundFrames() <-chan InboundFrame {
	return m.inboundCh
}

// StateChanges returns a read-only channel receiving every port-level
// state change, forwarded by the dispatch pump. Intended for monitoring
// surfaces; consumers that fall behind lose notifications.
func (m *Manager) StateChanges() <-chan StateChange {
	return m.publicNotifyCh
}

// VehicleEvents returns the channel carrying aggregate connection edges.
// The supervisor drives the connection topic and factsheet publishes
// from it.
func (m *Manager) VehicleEvents() <-chan VehicleEvent {
	return m.vehicleEventCh
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Close shuts down all sessions and clears the vehicle maps. After Close
// returns no new frames arrive, though buffered channel items may remain.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*vehicleEntry, 0, len(m.vehicles))
	for _, entry := range m.vehicles {
		entries = append(entries, entry)
	}
	m.vehicles = make(map[string]*vehicleEntry)
	m.failed = make(map[string]struct{})
	m.online = make(map[string]bool)
	m.stale = make(map[string]struct{})
	m.mu.Unlock()

	ctx := context.Background()
	for _, entry := range entries {
		m.teardownVehicle(ctx, entry)
	}

	m.logger.Info("manager closed", slog.Int("vehicles", len(entries)))
}
