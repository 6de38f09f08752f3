// agvsim simulates vendor-protocol AGVs for bridge bring-up and tests.
//
// Each simulated vehicle serves the five vendor TCP ports from its
// descriptor. The state-reporting port streams a 9300 state push on a fixed
// tick while the vehicle drives a square path and drains its battery; the
// four command ports decode inbound frames, apply the commands with visible
// effects (pause/resume/cancel, relocation, authority grab/release, clear
// errors, soft EMC) and acknowledge each with a 9200 frame. Command ports
// also push a 9001 identification frame on connect.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/vdabridge/internal/config"
	"github.com/dantte-lp/vdabridge/internal/seer"
	appversion "github.com/dantte-lp/vdabridge/internal/version"
)

const (
	defaultStateInterval  = 1 * time.Second
	defaultStatusInterval = 10 * time.Second

	// writeTimeout bounds a single frame write so one dead socket cannot
	// stall the push loop.
	writeTimeout = 2 * time.Second

	readBufSize = 4096

	// Square path: a straight leg, then a quarter turn in place.
	legSeconds  = 10.0
	turnSeconds = 5.0
	legSpeed    = 0.5 // m/s

	// Battery model per second of simulated time.
	initialBattery = 0.85
	chargeRate     = 0.001
	driveDrain     = 0.0001
	idleDrain      = 0.00005

	simMapID = "warehouse_map_001"

	// quarterTurnRate completes a 90 degree turn in one turn phase.
	quarterTurnRate = (math.Pi / 2) / turnSeconds
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath     string
	fleetDir       string
	listenHost     string
	stateInterval  time.Duration
	statusInterval time.Duration
	logLevel       string
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "path to one robot descriptor YAML")
	flag.StringVar(&opts.fleetDir, "fleet", "", "directory of robot descriptors (simulate all)")
	flag.StringVar(&opts.listenHost, "listen", "", "bind host override (default: descriptor ip_address)")
	flag.DurationVar(&opts.stateInterval, "state-interval", defaultStateInterval, "state push interval")
	flag.DurationVar(&opts.statusInterval, "status-interval", defaultStatusInterval, "status log interval")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("agvsim"))
		os.Exit(0)
	}

	return opts
}

func run() int {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(opts.logLevel),
	}))

	vehicles, err := loadVehicles(opts, logger)
	if err != nil {
		logger.Error("failed to load descriptors", slog.String("error", err.Error()))
		return 1
	}
	if len(vehicles) == 0 {
		logger.Error("no vehicles configured; use --config or --fleet")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	for _, v := range vehicles {
		g.Go(func() error {
			return v.run(gCtx, opts.stateInterval, opts.statusInterval)
		})
	}

	logger.Info("agvsim started",
		slog.Int("vehicles", len(vehicles)),
		slog.Duration("state_interval", opts.stateInterval),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agvsim exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("agvsim stopped")
	return 0
}

// loadVehicles builds one vehicle per descriptor from --config, --fleet, or
// both.
func loadVehicles(opts options, logger *slog.Logger) ([]*vehicle, error) {
	var descriptors []config.RobotDescriptor

	if opts.fleetDir != "" {
		fleet, err := config.LoadFleet(opts.fleetDir)
		if err != nil {
			return nil, err
		}
		descriptors = fleet
	}

	if opts.configPath != "" {
		d, err := config.LoadDescriptor(opts.configPath)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}

	vehicles := make([]*vehicle, 0, len(descriptors))
	for _, d := range descriptors {
		vehicles = append(vehicles, newVehicle(d, opts.listenHost, logger))
	}

	return vehicles, nil
}

// -------------------------------------------------------------------------
// Vehicle
// -------------------------------------------------------------------------

// vehicle is one simulated AGV: its mutable state, its five listeners and
// the set of state-port subscribers.
type vehicle struct {
	serial       string
	manufacturer string
	host         string
	ports        config.TCPPorts
	logger       *slog.Logger

	mu    sync.Mutex
	state simState

	connsMu    sync.Mutex
	stateConns map[net.Conn]struct{}

	seq atomic.Uint32
}

// simState is the mutable vehicle state the command ports act on. All
// access goes through vehicle.mu.
type simState struct {
	x, y, yaw  float64
	vx, vy, w  float64
	phase      float64 // seconds into the current leg+turn cycle
	odo        float64
	battery    float64
	charging   bool
	stopped    bool // pause / cancel
	softEMC    bool
	taskType   string
	taskStatus string
	errs       []any
	locked     bool
	owner      string
}

func (s *simState) driving() bool {
	return !s.stopped && !s.softEMC
}

// tick advances the motion and battery models by dt seconds.
func (s *simState) tick(dt float64) {
	switch {
	case s.charging:
		s.battery = math.Min(1, s.battery+chargeRate*dt)
	case s.driving():
		s.battery = math.Max(0, s.battery-driveDrain*dt)
	default:
		s.battery = math.Max(0, s.battery-idleDrain*dt)
	}

	if !s.driving() {
		s.vx, s.vy, s.w = 0, 0, 0
		return
	}

	s.phase += dt
	if s.phase >= legSeconds+turnSeconds {
		s.phase -= legSeconds + turnSeconds
	}
	if s.phase < legSeconds {
		s.vx, s.w = legSpeed, 0
	} else {
		s.vx, s.w = 0, quarterTurnRate
	}
	s.vy = 0

	s.x += s.vx * math.Cos(s.yaw) * dt
	s.y += s.vx * math.Sin(s.yaw) * dt
	s.yaw = wrapAngle(s.yaw + s.w*dt)
	s.odo += math.Abs(s.vx) * dt
}

// wrapAngle folds theta into (-pi, pi].
func wrapAngle(theta float64) float64 {
	m := math.Mod(math.Pi-theta, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return math.Pi - m
}

func newVehicle(d config.RobotDescriptor, listenHost string, logger *slog.Logger) *vehicle {
	host := d.Network.IPAddress
	if listenHost != "" {
		host = listenHost
	}

	return &vehicle{
		serial:       d.Serial(),
		manufacturer: d.RobotInfo.Manufacturer,
		host:         host,
		ports:        d.ProtocolAdapters.Seer.TCPPorts,
		logger:       logger.With(slog.String("serial", d.Serial())),
		state:        simState{battery: initialBattery},
		stateConns:   make(map[net.Conn]struct{}),
	}
}

// portBinding pairs one port role with its TCP port number.
type portBinding struct {
	role seer.PortRole
	port uint16
}

func (v *vehicle) bindings() []portBinding {
	return []portBinding{
		{seer.RoleStatePush, v.ports.StateReporting},
		{seer.RoleRelocation, v.ports.CommandControl.Relocation},
		{seer.RoleMovement, v.ports.CommandControl.Movement},
		{seer.RoleAuthority, v.ports.CommandControl.Authority},
		{seer.RoleSafety, v.ports.CommandControl.Safety},
	}
}

func (v *vehicle) run(ctx context.Context, stateInterval, statusInterval time.Duration) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, b := range v.bindings() {
		g.Go(func() error {
			return v.serve(gCtx, b.role, b.port)
		})
	}
	g.Go(func() error {
		return v.pushLoop(gCtx, stateInterval)
	})
	g.Go(func() error {
		v.statusLoop(gCtx, statusInterval)
		return nil
	})

	return g.Wait()
}

// serve accepts bridge connections on one port until ctx is canceled.
func (v *vehicle) serve(ctx context.Context, role seer.PortRole, port uint16) error {
	addr := fmt.Sprintf("%s:%d", v.host, port)
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s (%s): %w", addr, role, err)
	}
	defer ln.Close()

	v.logger.Info("listener started",
		slog.String("role", role.String()),
		slog.String("addr", addr),
	)

	go func() {
		<-ctx.Done()
		if cErr := ln.Close(); cErr != nil {
			v.logger.Debug("listener close error", slog.String("error", cErr.Error()))
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			v.logger.Warn("accept error",
				slog.String("role", role.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		go v.handleConn(ctx, conn, role)
	}
}

func (v *vehicle) handleConn(ctx context.Context, conn net.Conn, role seer.PortRole) {
	defer conn.Close()

	unhook := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer unhook()

	logger := v.logger.With(
		slog.String("role", role.String()),
		slog.String("remote", conn.RemoteAddr().String()),
	)
	logger.Info("bridge connected")

	if role == seer.RoleStatePush {
		v.addStateConn(conn)
		defer v.removeStateConn(conn)

		// The bridge never writes on the state port; reading only detects
		// the peer closing.
		_, _ = io.Copy(io.Discard, conn)
		logger.Info("bridge disconnected")
		return
	}

	if err := v.writeFrame(conn, seer.TypeRobotIdent, v.identBody()); err != nil {
		logger.Warn("ident push failed", slog.String("error", err.Error()))
		return
	}

	reframer := &seer.Reframer{}
	buf := make([]byte, readBufSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			logger.Info("bridge disconnected")
			return
		}

		for _, frame := range reframer.Feed(buf[:n]) {
			ack := v.applyCommand(role, frame, logger)
			if err := v.writeFrame(conn, seer.TypeAck, ack); err != nil {
				logger.Warn("ack write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// identBody is the identification blob pushed on command-port connect.
func (v *vehicle) identBody() map[string]any {
	return map[string]any{
		"vehicle_id":   v.serial,
		"manufacturer": v.manufacturer,
		"model":        "agvsim",
	}
}

// applyCommand mutates the vehicle state for one decoded command frame and
// returns the acknowledgement body.
func (v *vehicle) applyCommand(role seer.PortRole, frame *seer.Frame, logger *slog.Logger) map[string]any {
	logger.Info("command received",
		slog.String("type", frame.Type.String()),
		slog.Int("seq", int(frame.Sequence)),
		slog.Int("bytes", len(frame.Body)),
	)

	ack := map[string]any{
		"OK":           true,
		"status":       "received",
		"message_type": uint16(frame.Type),
		"create_on":    time.Now().UnixMilli(),
		"vehicle_id":   v.serial,
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case frame.Type == seer.TypeGrabAuthority && role == seer.RoleAuthority:
		var req struct {
			NickName string `json:"nick_name"`
		}
		_ = frame.DecodeJSON(&req)
		v.state.locked = true
		v.state.owner = req.NickName
		ack["control_granted"] = true
		ack["owner"] = req.NickName
		logger.Info("authority grabbed", slog.String("owner", req.NickName))

	case frame.Type == seer.TypeReleaseAuthority && role == seer.RoleAuthority:
		v.state.locked = false
		v.state.owner = ""
		ack["control_released"] = true
		logger.Info("authority released")

	case frame.Type == seer.TypeClearErrors && role == seer.RoleAuthority:
		v.state.errs = nil
		logger.Info("errors cleared")

	case frame.Type == seer.TypePause && role == seer.RoleMovement:
		v.state.stopped = true
		if v.state.taskType != "" {
			v.state.taskStatus = "PAUSED"
		}
		ack["driving"] = false

	case frame.Type == seer.TypeResume && role == seer.RoleMovement:
		v.state.stopped = false
		if v.state.taskType != "" {
			v.state.taskStatus = "RUNNING"
		}
		ack["driving"] = true

	case frame.Type == seer.TypeCancel && role == seer.RoleMovement:
		v.state.stopped = true
		if v.state.taskType != "" {
			v.state.taskStatus = "CANCELED"
		}

	case frame.Type == seer.TypeMoveTaskList && role == seer.RoleMovement:
		var req seer.MoveTaskList
		if err := frame.DecodeJSON(&req); err != nil {
			logger.Warn("bad move task list", slog.String("error", err.Error()))
			break
		}
		v.state.stopped = false
		v.state.taskType = "MOVE"
		v.state.taskStatus = "RUNNING"
		logger.Info("move task list accepted", slog.Int("tasks", len(req.Tasks)))

	case frame.Type == seer.TypeReloc && role == seer.RoleRelocation:
		var req struct {
			X     *float64 `json:"x"`
			Y     *float64 `json:"y"`
			Angle *float64 `json:"angle"`
		}
		_ = frame.DecodeJSON(&req)
		if req.X != nil {
			v.state.x = *req.X
		}
		if req.Y != nil {
			v.state.y = *req.Y
		}
		if req.Angle != nil {
			v.state.yaw = wrapAngle(*req.Angle)
		}
		logger.Info("relocated",
			slog.Float64("x", v.state.x),
			slog.Float64("y", v.state.y),
			slog.Float64("yaw", v.state.yaw),
		)

	case frame.Type == seer.TypeCancelReloc && role == seer.RoleRelocation:
		logger.Info("relocation canceled")

	case frame.Type == seer.TypeSoftEMC && role == seer.RoleSafety:
		var req struct {
			Status bool `json:"status"`
		}
		_ = frame.DecodeJSON(&req)
		v.state.softEMC = req.Status
		logger.Info("soft emc", slog.Bool("status", req.Status))

	default:
		logger.Warn("command ignored",
			slog.String("type", frame.Type.String()),
			slog.String("role", role.String()),
		)
	}

	return ack
}

// writeFrame marshals body, wraps it in a frame of the given type and
// writes it under the write deadline.
func (v *vehicle) writeFrame(conn net.Conn, msgType seer.MessageType, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", msgType, err)
	}

	wire, err := seer.EncodeFrame(v.nextSeq(), msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msgType, err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("write %s frame: %w", msgType, err)
	}

	return nil
}

func (v *vehicle) nextSeq() uint16 {
	return uint16(v.seq.Add(1))
}

// -------------------------------------------------------------------------
// State push
// -------------------------------------------------------------------------

// pushLoop advances the simulation and broadcasts a state push every tick.
func (v *vehicle) pushLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.mu.Lock()
			v.state.tick(interval.Seconds())
			push := v.statePushLocked()
			v.mu.Unlock()

			v.broadcast(push)
		}
	}
}

// statePushLocked builds the vendor state payload. Caller holds v.mu.
func (v *vehicle) statePushLocked() *seer.StatePush {
	s := v.state
	now := time.Now().UnixMilli()
	isStop := !s.driving()
	confidence := 0.95
	voltage := 46 + 4*s.battery

	// The vendor controller always emits the arrays, never null.
	errs := s.errs
	if errs == nil {
		errs = []any{}
	}

	return &seer.StatePush{
		VehicleID:      v.serial,
		CreateOn:       &now,
		CurrentMap:     simMapID,
		X:              f64(s.x),
		Y:              f64(s.y),
		Angle:          f64(s.yaw),
		VX:             f64(s.vx),
		VY:             f64(s.vy),
		W:              f64(s.w),
		IsStop:         &isStop,
		SoftEMC:        s.softEMC,
		Charging:       s.charging,
		BatteryLevel:   s.battery,
		Voltage:        &voltage,
		Confidence:     &confidence,
		TaskStatus:     s.taskStatus,
		TaskType:       s.taskType,
		Errors:         errs,
		Warnings:       []any{},
		Odo:            f64(s.odo),
	}
}

// broadcast sends one state push to every state-port subscriber, dropping
// subscribers whose writes fail.
func (v *vehicle) broadcast(push *seer.StatePush) {
	conns := v.snapshotStateConns()
	if len(conns) == 0 {
		return
	}

	for _, conn := range conns {
		if err := v.writeFrame(conn, seer.TypeStatePush, push); err != nil {
			v.logger.Warn("state push failed, dropping subscriber",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()),
			)
			v.removeStateConn(conn)
			_ = conn.Close()
		}
	}
}

func (v *vehicle) addStateConn(conn net.Conn) {
	v.connsMu.Lock()
	v.stateConns[conn] = struct{}{}
	v.connsMu.Unlock()
}

func (v *vehicle) removeStateConn(conn net.Conn) {
	v.connsMu.Lock()
	delete(v.stateConns, conn)
	v.connsMu.Unlock()
}

func (v *vehicle) snapshotStateConns() []net.Conn {
	v.connsMu.Lock()
	defer v.connsMu.Unlock()

	conns := make([]net.Conn, 0, len(v.stateConns))
	for conn := range v.stateConns {
		conns = append(conns, conn)
	}
	return conns
}

// statusLoop logs a periodic one-line summary of the vehicle.
func (v *vehicle) statusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.mu.Lock()
			s := v.state
			v.mu.Unlock()

			v.connsMu.Lock()
			subscribers := len(v.stateConns)
			v.connsMu.Unlock()

			v.logger.Info("vehicle status",
				slog.Float64("x", s.x),
				slog.Float64("y", s.y),
				slog.Float64("yaw", s.yaw),
				slog.Float64("battery", s.battery),
				slog.Bool("driving", s.driving()),
				slog.Bool("locked", s.locked),
				slog.String("owner", s.owner),
				slog.Int("state_subscribers", subscribers),
			)
		}
	}
}

func f64(v float64) *float64 {
	return &v
}
