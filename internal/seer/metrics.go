package seer

// -------------------------------------------------------------------------
// Metrics Reporting
// -------------------------------------------------------------------------

// MetricsReporter abstracts the metrics backend so sessions and the manager
// do not depend on a concrete collector. The bridgemetrics package provides
// the Prometheus implementation; tests and metric-less deployments get the
// no-op reporter.
//
// Labels are the vehicle serial and the port role name.
type MetricsReporter interface {
	// RegisterSession increments the tracked-sessions gauge.
	RegisterSession(serial, role string)

	// UnregisterSession decrements the tracked-sessions gauge.
	UnregisterSession(serial, role string)

	// IncFramesSent counts frames written to a vehicle port.
	IncFramesSent(serial, role string)

	// IncFramesReceived counts frames decoded from a vehicle port.
	IncFramesReceived(serial, role string)

	// IncFramesDropped counts inbound frames dropped because the dispatch
	// channel was full.
	IncFramesDropped(serial, role string)

	// AddResyncBytes counts stream bytes discarded while hunting for a
	// frame boundary.
	AddResyncBytes(serial, role string, n uint64)

	// RecordStateTransition counts session FSM transitions by edge.
	RecordStateTransition(serial, role, from, to string)

	// IncReconnectAttempts counts dial attempts made by the reconnect scan.
	IncReconnectAttempts(serial string)
}

// noopMetrics is the default MetricsReporter when no collector is attached.
type noopMetrics struct{}

func (noopMetrics) RegisterSession(_, _ string)             {}
func (noopMetrics) UnregisterSession(_, _ string)           {}
func (noopMetrics) IncFramesSent(_, _ string)               {}
func (noopMetrics) IncFramesReceived(_, _ string)           {}
func (noopMetrics) IncFramesDropped(_, _ string)            {}
func (noopMetrics) AddResyncBytes(_, _ string, _ uint64)    {}
func (noopMetrics) RecordStateTransition(_, _, _, _ string) {}
func (noopMetrics) IncReconnectAttempts(_ string)           {}
