package seer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// -------------------------------------------------------------------------
// Session Configuration & Notification
// -------------------------------------------------------------------------

// PortConfig contains the parameters needed to create a new port session.
type PortConfig struct {
	// Serial is the vehicle serial number this session belongs to.
	Serial string

	// Role identifies which vendor port this session speaks to.
	Role PortRole

	// Address is the vehicle endpoint in host:port form.
	Address string

	// Nickname is the controller identity sent in the authority claim
	// after an authority-port connect. Empty disables the claim.
	Nickname string

	// DialTimeout bounds connection establishment. Zero means the default.
	DialTimeout time.Duration
}

// StateChange is emitted when a port session FSM transitions between states.
type StateChange struct {
	// Serial is the vehicle serial of the session.
	Serial string

	// Role is the vendor port of the session.
	Role PortRole

	// OldState is the session state before the transition.
	OldState SessionState

	// NewState is the session state after the transition.
	NewState SessionState

	// Timestamp is when the transition occurred.
	Timestamp time.Time
}

// InboundFrame is a decoded vehicle frame tagged with its origin session.
type InboundFrame struct {
	// Serial is the vehicle serial the frame arrived from.
	Serial string

	// Role is the vendor port the frame arrived on.
	Role PortRole

	// Frame is the decoded frame. Body is an owned copy.
	Frame *Frame
}

// Dialer abstracts TCP connection establishment.
// This interface enables testing without real network I/O; the netio
// package provides the production implementation.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// -------------------------------------------------------------------------
// Session Options — functional options pattern
// -------------------------------------------------------------------------

// PortOption configures optional PortSession parameters.
type PortOption func(*PortSession)

// WithPortMetrics attaches a MetricsReporter to the session. If mr is nil,
// the default no-op reporter is used.
func WithPortMetrics(mr MetricsReporter) PortOption {
	return func(s *PortSession) {
		if mr != nil {
			s.metrics = mr
		}
	}
}

// -------------------------------------------------------------------------
// Session Errors
// -------------------------------------------------------------------------

// Sentinel errors for PortSession configuration and use.
var (
	// ErrInvalidSerial indicates an empty vehicle serial.
	ErrInvalidSerial = errors.New("serial must not be empty")

	// ErrInvalidAddress indicates an empty endpoint address.
	ErrInvalidAddress = errors.New("address must not be empty")

	// ErrInvalidRole indicates an out-of-range port role.
	ErrInvalidRole = errors.New("invalid port role")

	// ErrNilDialer indicates a nil dialer.
	ErrNilDialer = errors.New("dialer must not be nil")

	// ErrNotConnected indicates a send on a session without a live socket.
	ErrNotConnected = errors.New("session not connected")

	// ErrNotOpenable indicates an Open on a session that is already
	// connecting or connected.
	ErrNotOpenable = errors.New("session not in an openable state")
)

// -------------------------------------------------------------------------
// Session Constants
// -------------------------------------------------------------------------

const (
	// defaultDialTimeout bounds vehicle connection establishment. Vehicle
	// CPUs on the shop-floor network answer within a few hundred
	// milliseconds; anything slower is treated as down and handed to the
	// reconnect scan.
	defaultDialTimeout = 1 * time.Second

	// readTimeout is the per-read deadline in the receive loop. Short so
	// the loop observes context cancellation promptly on a silent socket.
	readTimeout = 1 * time.Second

	// writeTimeout bounds a single frame write.
	writeTimeout = 5 * time.Second

	// readBufSize is the receive buffer size. A full state push with
	// error lists fits in a few KiB; this covers bursts after a resync.
	readBufSize = 64 * 1024
)

// -------------------------------------------------------------------------
// PortSession
// -------------------------------------------------------------------------

// PortSession is one TCP connection to one vendor port of one vehicle.
//
// The FSM state is atomic for lock-free external reads. All socket and
// sequence-counter mutation happens under mu, including FSM event
// application, so a write failure and a concurrent read failure cannot
// interleave their transitions. Received frames are handed to the
// supervisor through a buffered channel; the channel send never blocks.
type PortSession struct {
	// state is the FSM state. Atomic for lock-free external reads.
	state atomic.Uint32

	// --- Session identity ---

	serial string
	role   PortRole
	addr   string
	nick   string

	dialTimeout time.Duration

	// --- Runtime ---

	dialer    Dialer
	metrics   MetricsReporter
	logger    *slog.Logger
	inboundCh chan<- InboundFrame
	notifyCh  chan<- StateChange

	// mu guards conn, seq, and FSM event application. Frame writes are
	// serialized under it so headers and bodies never interleave.
	mu   sync.Mutex
	conn net.Conn
	seq  uint16

	// --- Counters ---

	framesSent       atomic.Uint64
	framesReceived   atomic.Uint64
	resyncDiscarded  atomic.Uint64
	stateTransitions atomic.Uint64
	lastStateChange  atomic.Int64
	lastFrameRecv    atomic.Int64
}

// NewPortSession creates a new session for one vehicle port.
//
// The session starts Disconnected and owns no socket until Open is called.
// inboundCh receives decoded frames; notifyCh receives state changes. Both
// may be nil, in which case the respective events are dropped.
func NewPortSession(
	cfg PortConfig,
	dialer Dialer,
	inboundCh chan<- InboundFrame,
	notifyCh chan<- StateChange,
	logger *slog.Logger,
	opts ...PortOption,
) (*PortSession, error) {
	if err := validatePortConfig(cfg, dialer); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	s := &PortSession{
		serial:      cfg.Serial,
		role:        cfg.Role,
		addr:        cfg.Address,
		nick:        cfg.Nickname,
		dialTimeout: dialTimeout,
		dialer:      dialer,
		metrics:     noopMetrics{},
		inboundCh:   inboundCh,
		notifyCh:    notifyCh,
		logger: logger.With(
			slog.String("serial", cfg.Serial),
			slog.String("role", cfg.Role.String()),
			slog.String("addr", cfg.Address),
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state.Store(uint32(StateDisconnected))

	return s, nil
}

// validatePortConfig checks the required PortConfig fields.
func validatePortConfig(cfg PortConfig, dialer Dialer) error {
	if cfg.Serial == "" {
		return fmt.Errorf("new port session: %w", ErrInvalidSerial)
	}
	if cfg.Address == "" {
		return fmt.Errorf("new port session: %w", ErrInvalidAddress)
	}
	if int(cfg.Role) >= len(roleNames) {
		return fmt.Errorf("new port session: %w: %d", ErrInvalidRole, cfg.Role)
	}
	if dialer == nil {
		return fmt.Errorf("new port session: %w", ErrNilDialer)
	}
	return nil
}

// -------------------------------------------------------------------------
// Accessors — lock-free
// -------------------------------------------------------------------------

// State returns the current FSM state.
func (s *PortSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Serial returns the vehicle serial the session belongs to.
func (s *PortSession) Serial() string { return s.serial }

// Role returns the vendor port role.
func (s *PortSession) Role() PortRole { return s.role }

// Address returns the vehicle endpoint in host:port form.
func (s *PortSession) Address() string { return s.addr }

// FramesSent returns the number of frames written to the vehicle.
func (s *PortSession) FramesSent() uint64 { return s.framesSent.Load() }

// FramesReceived returns the number of frames decoded from the vehicle.
func (s *PortSession) FramesReceived() uint64 { return s.framesReceived.Load() }

// ResyncDiscarded returns the stream bytes discarded during resync.
func (s *PortSession) ResyncDiscarded() uint64 { return s.resyncDiscarded.Load() }

// StateTransitions returns the number of FSM transitions.
func (s *PortSession) StateTransitions() uint64 { return s.stateTransitions.Load() }

// LastStateChange returns the time of the most recent FSM transition,
// or the zero time if the session has never transitioned.
func (s *PortSession) LastStateChange() time.Time {
	ns := s.lastStateChange.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastFrameReceived returns the arrival time of the most recent frame, or
// the zero time if no frame has arrived yet. The manager's staleness
// watchdog uses this to flag state-push sessions that have gone silent.
func (s *PortSession) LastFrameReceived() time.Time {
	ns := s.lastFrameRecv.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// -------------------------------------------------------------------------
// Open / Shutdown
// -------------------------------------------------------------------------

// Open dials the vehicle port and, on success, starts the receive loop.
//
// The dial happens outside the session lock so a slow vehicle cannot stall
// Send callers or a previous socket's receive loop. If the session is shut
// down while the dial is in flight, the fresh socket is closed and
// discarded; the FSM's unlisted-pair rule makes the late OpenSuccess a
// no-op.
//
// Returns ErrNotOpenable when the session is already connecting or
// connected. A dial failure moves the session to Failed and is returned
// to the caller, which hands the vehicle to the reconnect scan.
func (s *PortSession) Open(ctx context.Context) error {
	s.mu.Lock()
	result := s.applyEventLocked(ctx, EventOpen)
	s.mu.Unlock()
	if !result.Changed {
		return fmt.Errorf("open %s/%s: %w", s.serial, s.role, ErrNotOpenable)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.applyEventLocked(ctx, EventOpenFailure)
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}

	s.conn = conn
	result = s.applyEventLocked(ctx, EventOpenSuccess)
	if !result.Changed {
		// Shut down while the dial was in flight.
		s.conn = nil
		_ = conn.Close()
		return fmt.Errorf("open %s/%s: %w", s.serial, s.role, ErrNotOpenable)
	}

	return nil
}

// Shutdown administratively closes the session. Any live socket is closed,
// which also unblocks the receive loop. Safe to call in any state.
func (s *PortSession) Shutdown(ctx context.Context) {
	s.applyEvent(ctx, EventShutdown)
}

// -------------------------------------------------------------------------
// FSM Event Application
// -------------------------------------------------------------------------

// applyEvent applies an FSM event under the session lock.
func (s *PortSession) applyEvent(ctx context.Context, event Event) FSMResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyEventLocked(ctx, event)
}

// applyEventLocked runs the FSM and executes resulting actions.
// Callers must hold s.mu.
func (s *PortSession) applyEventLocked(ctx context.Context, event Event) FSMResult {
	result := ApplyEvent(s.State(), event)
	if result.Changed {
		s.state.Store(uint32(result.NewState))
		s.logStateChange(result)
	}
	for _, action := range result.Actions {
		s.executeActionLocked(ctx, action)
	}
	return result
}

// logStateChange logs the FSM transition, updates counters, and emits a
// StateChange notification.
func (s *PortSession) logStateChange(result FSMResult) {
	s.logger.Info("session state changed",
		slog.String("old_state", result.OldState.String()),
		slog.String("new_state", result.NewState.String()),
	)
	s.stateTransitions.Add(1)
	s.lastStateChange.Store(time.Now().UnixNano())
	s.metrics.RecordStateTransition(
		s.serial, s.role.String(),
		result.OldState.String(), result.NewState.String(),
	)
	s.emitNotification(result)
}

// executeActionLocked dispatches a single FSM action. Callers must hold s.mu.
func (s *PortSession) executeActionLocked(ctx context.Context, action Action) {
	switch action {
	case ActionSpawnReceive:
		go s.receiveLoop(ctx, s.conn)
	case ActionCloseSocket:
		s.closeConnLocked()
	case ActionNotifyUp:
		// Notification already emitted by logStateChange. Authority ports
		// additionally claim the vehicle before any command traffic.
		if s.role == RoleAuthority && s.nick != "" {
			s.grabAuthorityLocked()
		}
	case ActionNotifyDown:
		// Notification already emitted by logStateChange.
	case ActionMarkFailed:
		// The manager owns the failed set; it reacts to the Failed state
		// in the notification and to Open's error return.
	default:
		s.logger.Warn("unknown FSM action", slog.Int("action", int(action)))
	}
}

// emitNotification sends a StateChange to the notification channel if set.
func (s *PortSession) emitNotification(result FSMResult) {
	if s.notifyCh == nil {
		return
	}
	sc := StateChange{
		Serial:    s.serial,
		Role:      s.role,
		OldState:  result.OldState,
		NewState:  result.NewState,
		Timestamp: time.Now(),
	}
	select {
	case s.notifyCh <- sc:
	default:
		s.logger.Warn("notification channel full, dropping state change")
	}
}

// closeConnLocked closes and clears the live socket. Callers must hold s.mu.
func (s *PortSession) closeConnLocked() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("socket close", slog.String("error", err.Error()))
	}
	s.conn = nil
}

// -------------------------------------------------------------------------
// Receive Loop
// -------------------------------------------------------------------------

// receiveLoop reads the socket until it fails or the context is canceled.
//
// Reads carry a short deadline so cancellation is observed within
// readTimeout even when the vehicle is silent. Stream bytes go through a
// Reframer, which tolerates torn frames and mid-stream garbage.
//
// The loop keeps its own reference to conn. When the session has already
// moved on to a replacement socket, the loop's terminal read error is
// dropped by the conn identity check in readFailed.
func (s *PortSession) receiveLoop(ctx context.Context, conn net.Conn) {
	var reframer Reframer
	var discardedPrev uint64
	buf := make([]byte, readBufSize)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			s.readFailed(ctx, conn, err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			frames := reframer.Feed(buf[:n])
			if d := reframer.Discarded(); d != discardedPrev {
				s.resyncDiscarded.Add(d - discardedPrev)
				s.metrics.AddResyncBytes(s.serial, s.role.String(), d-discardedPrev)
				discardedPrev = d
			}
			for _, frame := range frames {
				s.dispatchFrame(frame)
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.readFailed(ctx, conn, err)
			return
		}
	}
}

// readFailed applies the read-error event if this loop still owns the live
// socket. A stale loop on an already-replaced socket must not tear down
// its successor.
func (s *PortSession) readFailed(ctx context.Context, conn net.Conn, err error) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}

	s.logger.Debug("socket read failed", slog.String("error", err.Error()))
	s.applyEventLocked(ctx, EventReadError)
}

// dispatchFrame counts a received frame and hands it to the supervisor.
// The channel send never blocks; on a full channel the frame is dropped.
func (s *PortSession) dispatchFrame(frame *Frame) {
	s.framesReceived.Add(1)
	s.lastFrameRecv.Store(time.Now().UnixNano())
	s.metrics.IncFramesReceived(s.serial, s.role.String())

	if s.inboundCh == nil {
		return
	}
	item := InboundFrame{Serial: s.serial, Role: s.role, Frame: frame}
	select {
	case s.inboundCh <- item:
	default:
		s.metrics.IncFramesDropped(s.serial, s.role.String())
		s.logger.Debug("inbound channel full, dropping frame",
			slog.String("type", frame.Type.String()),
		)
	}
}

// -------------------------------------------------------------------------
// Frame Transmission
// -------------------------------------------------------------------------

// Send marshals body as JSON and writes it to the vehicle as one frame.
// A nil body produces a zero-length frame body, which is how parameterless
// commands like pause and cancel go out on the wire.
//
// Safe for concurrent use; writes are serialized so frames never interleave
// on the wire. A write failure tears the session down through the FSM and
// is returned to the caller; the reconnect scan picks the vehicle up.
func (s *PortSession) Send(ctx context.Context, msgType MessageType, body any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", msgType, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateConnected || s.conn == nil {
		return fmt.Errorf("send %s to %s/%s: %w", msgType, s.serial, s.role, ErrNotConnected)
	}

	frame, err := EncodeFrame(s.nextSeqLocked(), msgType, payload)
	if err != nil {
		// Encode failures are a caller problem; the socket stays up.
		return fmt.Errorf("send %s to %s/%s: %w", msgType, s.serial, s.role, err)
	}
	if err := s.writeLocked(frame); err != nil {
		s.applyEventLocked(ctx, EventWriteError)
		return fmt.Errorf("send %s to %s/%s: %w", msgType, s.serial, s.role, err)
	}

	return nil
}

// writeLocked writes one encoded frame to the socket. Callers must hold s.mu.
func (s *PortSession) writeLocked(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return err
	}
	s.framesSent.Add(1)
	s.metrics.IncFramesSent(s.serial, s.role.String())
	return nil
}

// nextSeqLocked returns the next 16-bit send sequence number. The counter
// is 1-based and wraps 65535 -> 1, matching the vehicle firmware's own
// counter. Callers must hold s.mu.
func (s *PortSession) nextSeqLocked() uint16 {
	s.seq++
	if s.seq == 0 {
		s.seq = 1
	}
	return s.seq
}

// -------------------------------------------------------------------------
// Authority Claim
// -------------------------------------------------------------------------

// grabAuthorityLocked sends the one-shot authority claim after an
// authority-port connect. Vehicles ignore movement commands until a
// controller has claimed them, so the claim goes out before any other
// traffic. A failure is only logged; the next reconnect repeats the claim.
// Callers must hold s.mu.
func (s *PortSession) grabAuthorityLocked() {
	payload, err := json.Marshal(map[string]any{"nick_name": s.nick})
	if err != nil {
		s.logger.Error("marshal authority claim", slog.String("error", err.Error()))
		return
	}
	frame, err := EncodeFrame(s.nextSeqLocked(), TypeGrabAuthority, payload)
	if err != nil {
		s.logger.Error("encode authority claim", slog.String("error", err.Error()))
		return
	}
	if err := s.writeLocked(frame); err != nil {
		s.logger.Warn("authority claim failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("authority claimed", slog.String("nick_name", s.nick))
}
