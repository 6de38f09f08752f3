package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/vdabridge/internal/config"
	"github.com/dantte-lp/vdabridge/internal/mqtt"
	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

// Sentinel errors for supervisor construction.
var (
	// ErrNilConfig indicates NewSupervisor was called without a config.
	ErrNilConfig = errors.New("nil config")

	// ErrNilBroker indicates NewSupervisor was called without a broker.
	ErrNilBroker = errors.New("nil broker")

	// ErrNilManager indicates NewSupervisor was called without a manager.
	ErrNilManager = errors.New("nil vehicle manager")
)

// downlinkSendTimeout bounds one vendor send triggered by a broker message.
const downlinkSendTimeout = 5 * time.Second

// Broker is the narrow broker surface the supervisor uses. *mqtt.Client
// implements it; tests substitute a fake.
type Broker interface {
	Subscribe(ctx context.Context, topic string, handler mqtt.MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Metrics is the counter surface the supervisor reports to. All methods
// must be safe for concurrent use.
type Metrics interface {
	IncPublishes(serial, kind string)
	IncTranslationDrops(serial, reason string)
	IncServiceFrames(serial, msgType string)
}

// noopMetrics discards all supervisor metrics.
type noopMetrics struct{}

func (noopMetrics) IncPublishes(_, _ string)        {}
func (noopMetrics) IncTranslationDrops(_, _ string) {}
func (noopMetrics) IncServiceFrames(_, _ string)    {}

// -------------------------------------------------------------------------
// Supervisor
// -------------------------------------------------------------------------

// SupervisorOption configures optional Supervisor parameters.
type SupervisorOption func(*Supervisor)

// WithMetrics sets the supervisor metrics sink. If m is nil, a no-op sink
// is kept.
func WithMetrics(m Metrics) SupervisorOption {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Supervisor bridges the fleet plane and the vehicle plane. It translates
// downlink payloads into vendor packets, folds uplink pushes into the state
// cache, publishes the four uplink topics on schedule and turns vehicle
// connection edges into connection topic publishes.
//
// The broker connection and the vehicle manager are owned by the caller;
// the supervisor only uses them.
type Supervisor struct {
	cfg     *config.Config
	broker  Broker
	manager *seer.Manager
	cache   *Cache
	logger  *slog.Logger
	metrics Metrics
	headers *headerCounter

	mu          sync.RWMutex
	descriptors map[string]config.RobotDescriptor
	factsheets  map[string]*vda.Factsheet
}

// NewSupervisor creates a supervisor over an already connected broker and a
// vehicle manager. If logger is nil, slog.Default() is used.
func NewSupervisor(
	cfg *config.Config,
	broker Broker,
	manager *seer.Manager,
	logger *slog.Logger,
	opts ...SupervisorOption,
) (*Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new supervisor: %w", ErrNilConfig)
	}
	if broker == nil {
		return nil, fmt.Errorf("new supervisor: %w", ErrNilBroker)
	}
	if manager == nil {
		return nil, fmt.Errorf("new supervisor: %w", ErrNilManager)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		cfg:         cfg,
		broker:      broker,
		manager:     manager,
		cache:       NewCache(),
		logger:      logger.With(slog.String("component", "bridge")),
		metrics:     noopMetrics{},
		headers:     newHeaderCounter(),
		descriptors: make(map[string]config.RobotDescriptor),
		factsheets:  make(map[string]*vda.Factsheet),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Start subscribes the downlink topics. The broker must already be
// connected; subscriptions survive broker reconnects through the client's
// resubscribe hook.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, kind := range []vda.TopicKind{vda.TopicOrder, vda.TopicInstantActions} {
		filter := vda.SubscriptionFilter(s.cfg.MQTT.TopicPrefix, kind)
		if err := s.broker.Subscribe(ctx, filter, s.handleDownlink); err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
		s.logger.Info("downlink subscribed", slog.String("filter", filter))
	}
	return nil
}

// Run drives the bridge until ctx is cancelled: the manager pumps, the
// uplink dispatch, the vehicle event pump and the four topic publishers.
// The initial fleet is loaded after the pumps are up so no connection edge
// is lost. Run returns nil on cancellation and an error only when the
// initial fleet load fails.
func (s *Supervisor) Run(ctx context.Context, fleet []config.RobotDescriptor) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { s.manager.RunDispatch(ctx); return nil })
	g.Go(func() error { s.manager.RunReconnect(ctx); return nil })
	g.Go(func() error { s.manager.RunWatchdog(ctx); return nil })

	g.Go(func() error { s.runUplink(ctx); return nil })
	g.Go(func() error { s.runVehicleEvents(ctx); return nil })
	g.Go(func() error { s.runPortChanges(ctx); return nil })

	for _, kind := range []vda.TopicKind{
		vda.TopicState, vda.TopicVisualization, vda.TopicConnection, vda.TopicFactsheet,
	} {
		g.Go(func() error { s.runPublisher(ctx, kind); return nil })
	}

	g.Go(func() error {
		if _, _, err := s.Reload(ctx, fleet); err != nil {
			return fmt.Errorf("initial fleet load: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Reload applies a fleet descriptor set: new serials are added, missing
// serials are torn down, surviving serials keep their sessions. Vehicles
// leaving the fleet get a farewell OFFLINE publish while their sessions are
// still known. Returns the numbers of added and removed vehicles.
func (s *Supervisor) Reload(ctx context.Context, fleet []config.RobotDescriptor) (int, int, error) {
	desired := make([]seer.VehicleConfig, 0, len(fleet))
	keep := make(map[string]bool, len(fleet))
	for _, d := range fleet {
		if err := s.registerDescriptor(d); err != nil {
			return 0, 0, err
		}
		keep[d.Serial()] = true
		desired = append(desired, s.vehicleConfig(d))
	}

	var leaving []string
	for _, serial := range s.manager.Serials() {
		if keep[serial] {
			continue
		}
		leaving = append(leaving, serial)
		if s.manager.Online(serial) {
			s.publishConnection(ctx, serial, vda.ConnectionOffline)
		}
	}

	added, removed, err := s.manager.ReconcileVehicles(ctx, desired)

	for _, serial := range leaving {
		s.forgetVehicle(serial)
	}

	if err != nil {
		return added, removed, fmt.Errorf("reconcile fleet: %w", err)
	}
	return added, removed, nil
}

// Shutdown publishes the farewell OFFLINE for every online vehicle and
// closes all vehicle sessions. Call it after Run has returned so no
// publisher or event pump races the farewell. The broker connection stays
// open; the caller owns it.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, serial := range s.manager.Serials() {
		if s.manager.Online(serial) {
			s.publishConnection(ctx, serial, vda.ConnectionOffline)
		}
	}
	s.manager.Close()
	s.logger.Info("supervisor stopped")
}

// -------------------------------------------------------------------------
// Fleet Registry
// -------------------------------------------------------------------------

// registerDescriptor stores the descriptor and its assembled factsheet.
func (s *Supervisor) registerDescriptor(d config.RobotDescriptor) error {
	fs, err := BuildFactsheet(d)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[d.Serial()] = d
	s.factsheets[d.Serial()] = fs
	return nil
}

// forgetVehicle drops all supervisor bookkeeping for a removed serial.
func (s *Supervisor) forgetVehicle(serial string) {
	s.mu.Lock()
	delete(s.descriptors, serial)
	delete(s.factsheets, serial)
	s.mu.Unlock()

	s.cache.Remove(serial)
	s.headers.Forget(serial)
}

// descriptor returns the registered descriptor for serial.
func (s *Supervisor) descriptor(serial string) (config.RobotDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[serial]
	return d, ok
}

// vehicleConfig converts a descriptor into the manager's vehicle config.
// The authority nickname falls back from the descriptor to the fleet-wide
// setting; an empty result disables the claim.
func (s *Supervisor) vehicleConfig(d config.RobotDescriptor) seer.VehicleConfig {
	nick := d.RobotInfo.Nickname
	if nick == "" {
		nick = s.cfg.Fleet.Nickname
	}

	ports := d.ProtocolAdapters.Seer.TCPPorts
	return seer.VehicleConfig{
		Serial:   d.Serial(),
		Nickname: nick,
		Host:     d.Network.IPAddress,
		Ports: map[seer.PortRole]uint16{
			seer.RoleStatePush:  ports.StateReporting,
			seer.RoleRelocation: ports.CommandControl.Relocation,
			seer.RoleMovement:   ports.CommandControl.Movement,
			seer.RoleAuthority:  ports.CommandControl.Authority,
			seer.RoleSafety:     ports.CommandControl.Safety,
		},
	}
}

// -------------------------------------------------------------------------
// Downlink — broker to vehicle
// -------------------------------------------------------------------------

// handleDownlink routes one broker message by its topic kind. It runs on
// the broker client's router goroutine; translation is quick and sends are
// bounded by downlinkSendTimeout, so the router is never held for long.
func (s *Supervisor) handleDownlink(topic string, payload []byte) {
	parsed, err := vda.ParseTopic(s.cfg.MQTT.TopicPrefix, topic)
	if err != nil {
		s.logger.Warn("downlink topic rejected",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, ok := s.descriptor(parsed.SerialNumber); !ok {
		s.logger.Warn("downlink for unknown vehicle",
			slog.String("serial", parsed.SerialNumber),
			slog.String("kind", string(parsed.Kind)),
		)
		return
	}

	switch parsed.Kind {
	case vda.TopicOrder:
		s.handleOrder(parsed.SerialNumber, payload)
	case vda.TopicInstantActions:
		s.handleInstantActions(parsed.SerialNumber, payload)
	default:
		s.logger.Debug("downlink kind ignored", slog.String("kind", string(parsed.Kind)))
	}
}

// handleOrder translates one order payload and sends the move task list to
// the vehicle's movement port. Delivery is best effort; an unreachable
// vehicle only logs a warning.
func (s *Supervisor) handleOrder(serial string, payload []byte) {
	order, err := vda.DecodeOrder(payload)
	if err != nil {
		s.logger.Warn("order payload rejected",
			slog.String("serial", serial),
			slog.String("error", err.Error()),
		)
		s.metrics.IncTranslationDrops(serial, "malformed_order")
		return
	}

	tasks, skipped := seer.TranslateOrder(order)
	for _, actionType := range skipped {
		s.logger.Warn("order action has no vendor operation",
			slog.String("serial", serial),
			slog.String("action_type", actionType),
		)
		s.metrics.IncTranslationDrops(serial, "unsupported_action")
	}
	if len(tasks.Tasks) == 0 {
		s.logger.Warn("order produced no move tasks",
			slog.String("serial", serial),
			slog.String("order_id", order.OrderID),
		)
		s.metrics.IncTranslationDrops(serial, "empty_order")
		return
	}

	s.cache.SetOrder(serial, order.OrderID, order.OrderUpdateID)

	ctx, cancel := context.WithTimeout(context.Background(), downlinkSendTimeout)
	defer cancel()
	if err := s.manager.Send(ctx, serial, seer.RoleMovement, seer.TypeMoveTaskList, tasks); err != nil {
		s.logger.Warn("order not delivered",
			slog.String("serial", serial),
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("order dispatched",
		slog.String("serial", serial),
		slog.String("order_id", order.OrderID),
		slog.Int("tasks", len(tasks.Tasks)),
	)
}

// handleInstantActions translates one instantActions payload and sends the
// resulting vendor commands in payload order. A factsheetRequest is
// answered from the fleet side without touching the vehicle.
func (s *Supervisor) handleInstantActions(serial string, payload []byte) {
	ia, err := vda.DecodeInstantActions(payload)
	if err != nil {
		s.logger.Warn("instantActions payload rejected",
			slog.String("serial", serial),
			slog.String("error", err.Error()),
		)
		s.metrics.IncTranslationDrops(serial, "malformed_instant_actions")
		return
	}

	res := seer.TranslateInstantActions(ia)
	for _, actionType := range res.Skipped {
		s.logger.Warn("instant action unknown",
			slog.String("serial", serial),
			slog.String("action_type", actionType),
		)
		s.metrics.IncTranslationDrops(serial, "unknown_action")
	}

	ctx, cancel := context.WithTimeout(context.Background(), downlinkSendTimeout)
	defer cancel()

	if res.FactsheetRequest {
		s.publishFactsheet(ctx, serial)
	}

	for _, cmd := range res.Commands {
		if err := s.manager.Send(ctx, serial, cmd.Role, cmd.Type, cmd.Body); err != nil {
			s.logger.Warn("instant action not delivered",
				slog.String("serial", serial),
				slog.String("type", cmd.Type.String()),
				slog.String("role", cmd.Role.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// -------------------------------------------------------------------------
// Uplink — vehicle to broker
// -------------------------------------------------------------------------

// runUplink drains inbound vehicle frames and folds state pushes into the
// cache. Blocks until ctx is cancelled.
func (s *Supervisor) runUplink(ctx context.Context) {
	s.logger.Info("uplink dispatch started")
	frames := s.manager.InboundFrames()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("uplink dispatch stopped")
			return
		case in := <-frames:
			s.handleInbound(in)
		}
	}
}

// handleInbound routes one vehicle frame by message type.
func (s *Supervisor) handleInbound(in seer.InboundFrame) {
	switch in.Frame.Type {
	case seer.TypeStatePush:
		s.handleStatePush(in)
	case seer.TypeAck, seer.TypeRobotIdent:
		s.metrics.IncServiceFrames(in.Serial, in.Frame.Type.String())
		s.logger.Debug("vehicle service frame",
			slog.String("serial", in.Serial),
			slog.String("role", in.Role.String()),
			slog.String("type", in.Frame.Type.String()),
			slog.Uint64("seq", uint64(in.Frame.Sequence)),
		)
	default:
		s.logger.Debug("vehicle frame ignored",
			slog.String("serial", in.Serial),
			slog.String("type", in.Frame.Type.String()),
		)
	}
}

// handleStatePush translates one vendor push and buffers the result for
// the publishers. The node bookkeeping of the translated state feeds the
// next translation.
func (s *Supervisor) handleStatePush(in seer.InboundFrame) {
	var push seer.StatePush
	if err := in.Frame.DecodeJSON(&push); err != nil {
		s.logger.Warn("state push rejected",
			slog.String("serial", in.Serial),
			slog.String("error", err.Error()),
		)
		s.metrics.IncTranslationDrops(in.Serial, "malformed_state_push")
		return
	}

	sctx := s.cache.Context(in.Serial)
	st := seer.TranslateStatePush(&push, sctx)
	sctx.LastNodeID = st.LastNodeID
	sctx.LastNodeSequenceID = st.LastNodeSequenceID
	s.cache.SetState(in.Serial, st, sctx, time.Now())
}

// -------------------------------------------------------------------------
// Vehicle Events
// -------------------------------------------------------------------------

// runVehicleEvents turns vehicle connection edges into connection topic
// publishes. Blocks until ctx is cancelled.
func (s *Supervisor) runVehicleEvents(ctx context.Context) {
	events := s.manager.VehicleEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.handleVehicleEvent(ctx, ev)
		}
	}
}

// handleVehicleEvent publishes the connection edge and, on a fresh online,
// the factsheet.
func (s *Supervisor) handleVehicleEvent(ctx context.Context, ev seer.VehicleEvent) {
	switch ev.Kind {
	case seer.VehicleOnline:
		s.logger.Info("vehicle online", slog.String("serial", ev.Serial))
		s.publishConnection(ctx, ev.Serial, vda.ConnectionOnline)
		s.publishFactsheet(ctx, ev.Serial)
	case seer.VehicleOffline:
		s.logger.Info("vehicle offline", slog.String("serial", ev.Serial))
		s.publishConnection(ctx, ev.Serial, vda.ConnectionOffline)
	case seer.VehicleStale:
		s.logger.Warn("vehicle stale", slog.String("serial", ev.Serial))
		s.publishConnection(ctx, ev.Serial, vda.ConnectionBroken)
	}
}

// runPortChanges drains per-port session transitions. The aggregate edges
// arrive through the vehicle event pump; the raw transitions are only
// interesting for debugging.
func (s *Supervisor) runPortChanges(ctx context.Context) {
	changes := s.manager.StateChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case sc := <-changes:
			s.logger.Debug("port session transition",
				slog.String("serial", sc.Serial),
				slog.String("role", sc.Role.String()),
				slog.String("from", sc.OldState.String()),
				slog.String("to", sc.NewState.String()),
			)
		}
	}
}
