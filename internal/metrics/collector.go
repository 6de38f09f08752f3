package bridgemetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/vdabridge/internal/seer"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const namespace = "vdabridge"

// Per-concern subsystems keep vehicle-port metrics, broker metrics and
// translation metrics apart in the exposition.
const (
	subsystemSeer   = "seer"
	subsystemMQTT   = "mqtt"
	subsystemBridge = "bridge"
)

// Label names for bridge metrics.
const (
	labelSerial    = "serial"
	labelRole      = "role"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelKind      = "kind"
	labelReason    = "reason"
	labelType      = "type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Bridge Metrics
// -------------------------------------------------------------------------

// Collector holds all bridge Prometheus metrics.
//
// Metrics are designed for fleet operations monitoring:
//   - Session gauges track currently open vehicle port connections.
//   - Frame counters track TX/RX/drop volumes per port.
//   - State transition counters record session FSM changes for alerting.
//   - Publish counters track broker traffic per topic kind.
//   - Translation drop counters flag fleet messages the vehicle protocol
//     could not express.
type Collector struct {
	// Sessions tracks the number of currently open vehicle port sessions.
	// Incremented on session registration, decremented on teardown.
	Sessions *prometheus.GaugeVec

	// FramesSent counts frames written to vehicle ports.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts frames decoded from vehicle ports.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts inbound frames dropped because the dispatch
	// channel was full.
	FramesDropped *prometheus.CounterVec

	// ResyncBytes counts stream bytes discarded while hunting for a frame
	// boundary after framing corruption.
	ResyncBytes *prometheus.CounterVec

	// StateTransitions counts session FSM transitions. Each counter is
	// labeled with the old state and new state for precise alerting (e.g.,
	// connected->failed).
	StateTransitions *prometheus.CounterVec

	// ReconnectAttempts counts dial attempts made by the reconnect scan.
	ReconnectAttempts *prometheus.CounterVec

	// ServiceFrames counts uplink frames that carry no fleet payload, such
	// as command acks and identity announcements.
	ServiceFrames *prometheus.CounterVec

	// Publishes counts MQTT messages published per vehicle and topic kind.
	Publishes *prometheus.CounterVec

	// TranslationDrops counts fleet messages dropped because they could
	// not be translated for the vehicle.
	TranslationDrops *prometheus.CounterVec
}

var _ seer.MetricsReporter = (*Collector)(nil)

// NewCollector creates a Collector with all bridge metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// Vehicle-port metrics carry the "vdabridge_seer_" prefix, broker metrics
// "vdabridge_mqtt_" and translation metrics "vdabridge_bridge_".
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.ResyncBytes,
		c.StateTransitions,
		c.ReconnectAttempts,
		c.ServiceFrames,
		c.Publishes,
		c.TranslationDrops,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	portLabels := []string{labelSerial, labelRole}
	transitionLabels := []string{labelSerial, labelRole, labelFromState, labelToState}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "sessions",
			Help:      "Number of currently open vehicle port sessions.",
		}, portLabels),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "frames_sent_total",
			Help:      "Total frames written to vehicle ports.",
		}, portLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "frames_received_total",
			Help:      "Total frames decoded from vehicle ports.",
		}, portLabels),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "frames_dropped_total",
			Help:      "Total inbound frames dropped due to a full dispatch channel.",
		}, portLabels),

		ResyncBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "resync_bytes_total",
			Help:      "Total stream bytes discarded while searching for a frame boundary.",
		}, portLabels),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "state_transitions_total",
			Help:      "Total port session FSM state transitions.",
		}, transitionLabels),

		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "reconnect_attempts_total",
			Help:      "Total dial attempts made by the reconnect scan.",
		}, []string{labelSerial}),

		ServiceFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSeer,
			Name:      "service_frames_total",
			Help:      "Total uplink service frames (acks, identity) per vehicle.",
		}, []string{labelSerial, labelType}),

		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMQTT,
			Name:      "publishes_total",
			Help:      "Total MQTT messages published per vehicle and topic kind.",
		}, []string{labelSerial, labelKind}),

		TranslationDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBridge,
			Name:      "translation_drops_total",
			Help:      "Total fleet messages dropped because translation failed.",
		}, []string{labelSerial, labelReason}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the open sessions gauge for the given port.
// Called when the Manager registers a new port session.
func (c *Collector) RegisterSession(serial, role string) {
	c.Sessions.WithLabelValues(serial, role).Inc()
}

// UnregisterSession decrements the open sessions gauge for the given port.
// Called when the Manager tears a port session down.
func (c *Collector) UnregisterSession(serial, role string) {
	c.Sessions.WithLabelValues(serial, role).Dec()
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesSent increments the transmitted frames counter for the given port.
func (c *Collector) IncFramesSent(serial, role string) {
	c.FramesSent.WithLabelValues(serial, role).Inc()
}

// IncFramesReceived increments the received frames counter for the given port.
func (c *Collector) IncFramesReceived(serial, role string) {
	c.FramesReceived.WithLabelValues(serial, role).Inc()
}

// IncFramesDropped increments the dropped frames counter for the given port.
// Called when an inbound frame cannot be handed to the dispatch channel.
func (c *Collector) IncFramesDropped(serial, role string) {
	c.FramesDropped.WithLabelValues(serial, role).Inc()
}

// AddResyncBytes adds discarded stream bytes for the given port. A nonzero
// rate means the vehicle and the bridge disagreed about frame boundaries.
func (c *Collector) AddResyncBytes(serial, role string, n uint64) {
	c.ResyncBytes.WithLabelValues(serial, role).Add(float64(n))
}

// -------------------------------------------------------------------------
// State Transitions
// -------------------------------------------------------------------------

// RecordStateTransition increments the state transition counter with the
// old and new state labels. Used for alerting on port flaps (e.g.,
// connected->failed transitions marking a vehicle unreachable).
func (c *Collector) RecordStateTransition(serial, role, from, to string) {
	c.StateTransitions.WithLabelValues(serial, role, from, to).Inc()
}

// IncReconnectAttempts increments the reconnect attempt counter for the
// given vehicle.
func (c *Collector) IncReconnectAttempts(serial string) {
	c.ReconnectAttempts.WithLabelValues(serial).Inc()
}

// IncServiceFrames increments the service frame counter for the given
// vehicle and message type name.
func (c *Collector) IncServiceFrames(serial, msgType string) {
	c.ServiceFrames.WithLabelValues(serial, msgType).Inc()
}

// -------------------------------------------------------------------------
// Broker Traffic
// -------------------------------------------------------------------------

// IncPublishes increments the publish counter for the given vehicle and
// topic kind (state, visualization, connection, factsheet).
func (c *Collector) IncPublishes(serial, kind string) {
	c.Publishes.WithLabelValues(serial, kind).Inc()
}

// IncTranslationDrops increments the translation drop counter for the
// given vehicle. The reason label names the rejected input class.
func (c *Collector) IncTranslationDrops(serial, reason string) {
	c.TranslationDrops.WithLabelValues(serial, reason).Inc()
}
