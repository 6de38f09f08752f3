package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dantte-lp/vdabridge/internal/config"
	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

// -------------------------------------------------------------------------
// Header Sequencing
// -------------------------------------------------------------------------

// headerCounter hands out the monotonically increasing headerId each VDA
// uplink stream carries. One sequence per vehicle and topic kind.
type headerCounter struct {
	mu   sync.Mutex
	next map[string]int
}

func newHeaderCounter() *headerCounter {
	return &headerCounter{next: make(map[string]int)}
}

// Next returns the next headerId for the given stream, starting at 1.
func (h *headerCounter) Next(serial string, kind vda.TopicKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := serial + "/" + string(kind)
	h.next[key]++
	return h.next[key]
}

// Forget drops all streams of one vehicle. A re-added vehicle restarts its
// headerIds at 1.
func (h *headerCounter) Forget(serial string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range h.next {
		if strings.HasPrefix(key, serial+"/") {
			delete(h.next, key)
		}
	}
}

// -------------------------------------------------------------------------
// Publish Scheduling
// -------------------------------------------------------------------------

// runPublisher drives one uplink topic until ctx is cancelled. The ticker
// runs at the shortest cadence configured for the topic across the fleet
// and is re-checked after every pass, so a reload that shortens a
// vehicle's cadence takes effect within one tick.
func (s *Supervisor) runPublisher(ctx context.Context, kind vda.TopicKind) {
	base := s.tickInterval(kind)
	log := s.logger.With(slog.String("topic", string(kind)))
	log.Info("publisher started", slog.Duration("interval", base))

	ticker := time.NewTicker(base)
	defer ticker.Stop()

	last := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			log.Info("publisher stopped")
			return
		case now := <-ticker.C:
			s.publishDue(ctx, kind, now, last, base)

			if next := s.tickInterval(kind); next != base {
				base = next
				ticker.Reset(base)
				log.Debug("publish cadence changed", slog.Duration("interval", base))
			}
		}
	}
}

// publishDue publishes kind for every vehicle whose cadence elapsed. The
// half-tick tolerance keeps ticker jitter from stretching a vehicle's
// effective period to two base ticks.
func (s *Supervisor) publishDue(
	ctx context.Context,
	kind vda.TopicKind,
	now time.Time,
	last map[string]time.Time,
	base time.Duration,
) {
	serials := s.manager.Serials()
	for _, serial := range serials {
		interval := s.intervalFor(serial, kind)
		if prev, ok := last[serial]; ok && now.Sub(prev) < interval-base/2 {
			continue
		}
		if s.publishKind(ctx, serial, kind) {
			last[serial] = now
		}
	}

	for serial := range last {
		if !slices.Contains(serials, serial) {
			delete(last, serial)
		}
	}
}

// tickInterval returns the shortest cadence configured for kind across the
// daemon default and every registered robot override.
func (s *Supervisor) tickInterval(kind vda.TopicKind) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base := intervalOf(s.cfg.Intervals, kind)
	for _, d := range s.descriptors {
		if iv := intervalOf(d.Intervals(s.cfg.Intervals), kind); iv < base {
			base = iv
		}
	}
	if base <= 0 {
		base = time.Second
	}
	return base
}

// intervalFor returns the effective cadence of one vehicle for kind.
func (s *Supervisor) intervalFor(serial string, kind vda.TopicKind) time.Duration {
	s.mu.RLock()
	d, ok := s.descriptors[serial]
	s.mu.RUnlock()

	if !ok {
		return intervalOf(s.cfg.Intervals, kind)
	}
	return intervalOf(d.Intervals(s.cfg.Intervals), kind)
}

// intervalOf picks the cadence for one topic kind.
func intervalOf(iv config.IntervalsConfig, kind vda.TopicKind) time.Duration {
	switch kind {
	case vda.TopicState:
		return iv.State
	case vda.TopicVisualization:
		return iv.Visualization
	case vda.TopicConnection:
		return iv.Connection
	case vda.TopicFactsheet:
		return iv.Factsheet
	default:
		return iv.State
	}
}

// -------------------------------------------------------------------------
// Topic Publishers
// -------------------------------------------------------------------------

// publishKind publishes one topic for one vehicle and reports whether a
// message went out.
func (s *Supervisor) publishKind(ctx context.Context, serial string, kind vda.TopicKind) bool {
	switch kind {
	case vda.TopicState:
		return s.publishState(ctx, serial)
	case vda.TopicVisualization:
		return s.publishVisualization(ctx, serial)
	case vda.TopicConnection:
		return s.publishStoredConnection(ctx, serial)
	case vda.TopicFactsheet:
		return s.publishFactsheetTick(ctx, serial)
	default:
		return false
	}
}

// publishState publishes the buffered state for one vehicle. Nothing goes
// out before the first push or while the vehicle is offline.
func (s *Supervisor) publishState(ctx context.Context, serial string) bool {
	if !s.manager.Online(serial) {
		return false
	}
	snap, ok := s.cache.Snapshot(serial)
	if !ok || snap.State == nil {
		return false
	}

	st := *snap.State
	st.Header = s.header(serial, vda.TopicState)
	return s.publish(ctx, serial, vda.TopicState, &st)
}

// publishVisualization publishes the pose extract of the buffered state.
func (s *Supervisor) publishVisualization(ctx context.Context, serial string) bool {
	if !s.manager.Online(serial) {
		return false
	}
	snap, ok := s.cache.Snapshot(serial)
	if !ok || snap.State == nil {
		return false
	}

	vis := seer.VisualizationFromState(snap.State)
	vis.Header = s.header(serial, vda.TopicVisualization)
	return s.publish(ctx, serial, vda.TopicVisualization, vis)
}

// publishStoredConnection repeats the vehicle's last connection edge on the
// periodic cadence. Vehicles that never produced an edge are skipped, so a
// never-connected vehicle stays silent on the fleet plane.
func (s *Supervisor) publishStoredConnection(ctx context.Context, serial string) bool {
	snap, ok := s.cache.Snapshot(serial)
	if !ok || snap.Connection == "" {
		return false
	}
	return s.publishConnectionPayload(ctx, serial, snap.Connection)
}

// publishConnection records a connection edge and publishes it immediately.
func (s *Supervisor) publishConnection(ctx context.Context, serial string, cs vda.ConnectionState) {
	s.cache.SetConnection(serial, cs)
	s.publishConnectionPayload(ctx, serial, cs)
}

func (s *Supervisor) publishConnectionPayload(ctx context.Context, serial string, cs vda.ConnectionState) bool {
	payload := &vda.Connection{
		Header:          s.header(serial, vda.TopicConnection),
		ConnectionState: cs,
	}
	return s.publish(ctx, serial, vda.TopicConnection, payload)
}

// publishFactsheetTick republishes the factsheet while the vehicle is
// online.
func (s *Supervisor) publishFactsheetTick(ctx context.Context, serial string) bool {
	if !s.manager.Online(serial) {
		return false
	}
	return s.publishFactsheet(ctx, serial)
}

// publishFactsheet stamps and publishes the vehicle's static factsheet.
func (s *Supervisor) publishFactsheet(ctx context.Context, serial string) bool {
	s.mu.RLock()
	static, ok := s.factsheets[serial]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("factsheet missing", slog.String("serial", serial))
		return false
	}

	fs := *static
	fs.HeaderID = ptrTo(s.headers.Next(serial, vda.TopicFactsheet))
	fs.Timestamp = vda.Timestamp(time.Now())
	return s.publish(ctx, serial, vda.TopicFactsheet, &fs)
}

// header stamps the next uplink header for one vehicle stream.
func (s *Supervisor) header(serial string, kind vda.TopicKind) vda.Header {
	d, _ := s.descriptor(serial)
	return vda.NewHeader(s.headers.Next(serial, kind), d.RobotInfo.Manufacturer, serial)
}

// publish marshals and publishes one uplink payload for serial.
func (s *Supervisor) publish(ctx context.Context, serial string, kind vda.TopicKind, payload any) bool {
	d, ok := s.descriptor(serial)
	if !ok {
		s.logger.Warn("publish for unregistered vehicle", slog.String("serial", serial))
		return false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("uplink payload marshal failed",
			slog.String("serial", serial),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return false
	}

	topic := vda.BuildTopic(s.cfg.MQTT.TopicPrefix, d.RobotInfo.Manufacturer, serial, kind)
	if err := s.broker.Publish(ctx, topic, raw, s.cfg.MQTT.Retain); err != nil {
		s.logger.Warn("uplink publish failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.metrics.IncPublishes(serial, string(kind))
	return true
}
