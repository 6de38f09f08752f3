package seer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dantte-lp/vdabridge/internal/vda"
)

// This file translates the vendor periodic state push into the VDA 5050
// uplink payloads. The vendor reports everything in one flat JSON object;
// the fleet plane wants it split across state and visualization with typed
// enums and SI units. Pure functions again: continuity fields the push
// lacks (order ids, node sequence) come in through StateContext.

// StatePush is the vendor state payload pushed on the state-push port.
// Pointer fields distinguish absent from zero where the mapping depends
// on presence.
type StatePush struct {
	VehicleID      string          `json:"vehicle_id"`
	CreateOn       *int64          `json:"create_on"`
	CurrentMap     string          `json:"current_map"`
	X              *float64        `json:"x"`
	Y              *float64        `json:"y"`
	Angle          *float64        `json:"angle"`
	Yaw            *float64        `json:"yaw"`
	VX             *float64        `json:"vx"`
	VY             *float64        `json:"vy"`
	W              *float64        `json:"w"`
	IsStop         *bool           `json:"is_stop"`
	Blocked        bool            `json:"blocked"`
	Emergency      bool            `json:"emergency"`
	SoftEMC        bool            `json:"soft_emc"`
	Charging       bool            `json:"charging"`
	BatteryLevel   float64         `json:"battery_level"`
	Voltage        *float64        `json:"voltage"`
	Confidence     *float64        `json:"confidence"`
	CurrentStation string          `json:"current_station"`
	TargetDist     *float64        `json:"target_dist"`
	TaskStatus     string          `json:"task_status"`
	TaskType       string          `json:"task_type"`
	Errors         []any           `json:"errors"`
	Warnings       []any           `json:"warnings"`
	Fork           json.RawMessage `json:"fork"`
	Jack           json.RawMessage `json:"jack"`
	ControllerTemp *float64        `json:"controller_temp"`
	SSID           *string         `json:"ssid"`
	RSSI           *float64        `json:"rssi"`
	Odo            *float64        `json:"odo"`
}

// StateContext carries fleet-side continuity across pushes: the order the
// bridge last routed to this vehicle and the node bookkeeping from the
// previous state. The vendor push knows nothing about either.
type StateContext struct {
	OrderID            string
	OrderUpdateID      int
	LastNodeID         string
	LastNodeSequenceID int
}

// NormalizeTheta converts a vendor heading into VDA 5050 radians. Values
// beyond a full circle are taken as degrees. The result is wrapped into
// (-pi, pi], so +180 degrees stays +pi.
func NormalizeTheta(raw float64) float64 {
	theta := raw
	if math.Abs(theta) > 2*math.Pi {
		theta *= math.Pi / 180
	}
	m := math.Mod(math.Pi-theta, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return math.Pi - m
}

// TranslateStatePush builds the VDA 5050 state payload from a vendor push.
// Only Header.SerialNumber is filled (from vehicle_id); the remaining header
// fields belong to the publisher.
func TranslateStatePush(push *StatePush, ctx StateContext) *vda.State {
	st := &vda.State{
		Header:        vda.Header{SerialNumber: push.VehicleID},
		OrderID:       ctx.OrderID,
		OrderUpdateID: ctx.OrderUpdateID,
		OperatingMode: operatingMode(push),
		NodeStates:    []vda.NodeState{},
		EdgeStates:    []vda.EdgeState{},
		ActionStates:  []vda.ActionState{},
		Errors:        []vda.Error{},
		BatteryState: vda.BatteryState{
			BatteryCharge:  push.BatteryLevel,
			BatteryVoltage: push.Voltage,
			Charging:       push.Charging,
		},
		SafetyState: vda.SafetyState{
			EStop:          vda.EStopAutoAck,
			FieldViolation: push.Blocked,
		},
		DistanceSinceLastNode: push.TargetDist,
	}

	if push.Emergency || push.SoftEMC {
		st.SafetyState.EStop = vda.EStopTriggered
	}

	st.AGVPosition = agvPosition(push)
	st.Velocity = velocity(push)

	// is_stop drives both paused and driving. Without it, motion decides.
	paused := push.IsStop != nil && *push.IsStop
	st.Paused = &paused
	if push.IsStop != nil {
		st.Driving = !*push.IsStop
	} else {
		st.Driving = deref(push.VX) != 0 || deref(push.VY) != 0 || deref(push.W) != 0
	}

	st.LastNodeID = ctx.LastNodeID
	st.LastNodeSequenceID = ctx.LastNodeSequenceID
	if push.CurrentStation != "" {
		st.LastNodeID = push.CurrentStation
		st.NodeStates = append(st.NodeStates, vda.NodeState{
			NodeID:          push.CurrentStation,
			SequenceID:      ctx.LastNodeSequenceID,
			NodeDescription: fmt.Sprintf("current station %s", push.CurrentStation),
			Released:        false,
			NodePosition:    nodePosition(st.AGVPosition),
		})
	}

	if push.TaskType != "" && push.TaskType != "NONE" {
		st.ActionStates = append(st.ActionStates, vda.ActionState{
			ActionID:          fmt.Sprintf("task_%s", strings.ToLower(push.TaskType)),
			ActionType:        push.TaskType,
			ActionStatus:      taskStatusToActionStatus(push.TaskStatus),
			ActionDescription: fmt.Sprintf("current task %s", push.TaskType),
			ResultDescription: fmt.Sprintf("task status %s", push.TaskStatus),
		})
	}

	for _, e := range push.Errors {
		st.Errors = append(st.Errors, vda.Error{
			ErrorType:        "DEVICE_ERROR",
			ErrorLevel:       vda.ErrorLevelFatal,
			ErrorDescription: describe(e),
		})
	}
	for _, w := range push.Warnings {
		st.Errors = append(st.Errors, vda.Error{
			ErrorType:        "DEVICE_WARNING",
			ErrorLevel:       vda.ErrorLevelWarning,
			ErrorDescription: describe(w),
		})
	}

	st.Loads = loads(push)
	st.Information = information(push)

	return st
}

// VisualizationFromState projects a state payload onto the visualization
// topic: pose and velocity only.
func VisualizationFromState(st *vda.State) *vda.Visualization {
	return &vda.Visualization{
		Header:      vda.Header{SerialNumber: st.SerialNumber},
		AGVPosition: st.AGVPosition,
		Velocity:    st.Velocity,
	}
}

// agvPosition maps x/y/angle onto the VDA pose. Both coordinates must be
// present; the heading falls back from angle to yaw to zero.
func agvPosition(push *StatePush) *vda.AGVPosition {
	if push.X == nil || push.Y == nil {
		return nil
	}

	heading := 0.0
	switch {
	case push.Angle != nil:
		heading = *push.Angle
	case push.Yaw != nil:
		heading = *push.Yaw
	}

	pos := &vda.AGVPosition{
		X:                   *push.X,
		Y:                   *push.Y,
		Theta:               NormalizeTheta(heading),
		MapID:               push.CurrentMap,
		PositionInitialized: true,
	}
	if push.Confidence != nil {
		score := math.Max(0, math.Min(1, *push.Confidence))
		pos.LocalizationScore = &score
	}
	return pos
}

// velocity maps vx/vy/w. Any one key present yields a full record with zero
// defaults for the others.
func velocity(push *StatePush) *vda.Velocity {
	if push.VX == nil && push.VY == nil && push.W == nil {
		return nil
	}
	vx, vy, omega := deref(push.VX), deref(push.VY), deref(push.W)
	return &vda.Velocity{VX: &vx, VY: &vy, Omega: &omega}
}

func nodePosition(pos *vda.AGVPosition) *vda.NodePosition {
	if pos == nil {
		return nil
	}
	theta := pos.Theta
	return &vda.NodePosition{
		X:     pos.X,
		Y:     pos.Y,
		Theta: &theta,
		MapID: pos.MapID,
	}
}

func operatingMode(push *StatePush) vda.OperatingMode {
	switch {
	case push.Emergency:
		return vda.OperatingModeEmergency
	case push.SoftEMC:
		return vda.OperatingModeSemiAutomatic
	case push.Charging:
		return vda.OperatingModeService
	default:
		return vda.OperatingModeAutomatic
	}
}

func taskStatusToActionStatus(taskStatus string) vda.ActionStatus {
	switch strings.ToUpper(taskStatus) {
	case "RUNNING":
		return vda.ActionRunning
	case "COMPLETED":
		return vda.ActionFinished
	case "FAILED", "CANCELED":
		return vda.ActionFailed
	default:
		// IDLE, PAUSED and anything unrecognised.
		return vda.ActionWaiting
	}
}

// loads reports carried loads from the fork and jack attachment keys. The
// vendor only signals presence; dimensions are the nominal attachment sizes.
func loads(push *StatePush) []vda.Load {
	var out []vda.Load
	if len(push.Fork) > 0 {
		height := 0.1
		out = append(out, vda.Load{
			LoadID:               "fork_load",
			LoadType:             "PALLET",
			LoadPosition:         "FORK",
			BoundingBoxReference: &vda.BoundingBoxReference{Theta: new(float64)},
			LoadDimensions:       &vda.LoadDimensions{Length: 1.2, Width: 0.8, Height: &height},
			Weight:               new(float64),
		})
	}
	if len(push.Jack) > 0 {
		height := 0.05
		out = append(out, vda.Load{
			LoadID:               "jack_load",
			LoadType:             "RACK",
			LoadPosition:         "JACK",
			BoundingBoxReference: &vda.BoundingBoxReference{Theta: new(float64)},
			LoadDimensions:       &vda.LoadDimensions{Length: 1.0, Width: 1.0, Height: &height},
			Weight:               new(float64),
		})
	}
	return out
}

// information surfaces vendor diagnostics the VDA state has no typed slot
// for. Controller temperature above 70 degrees is flagged WARNING.
func information(push *StatePush) []vda.Information {
	var out []vda.Information
	if push.Confidence != nil {
		out = append(out, vda.Information{
			InfoType:        "LOCALIZATION",
			InfoLevel:       vda.InfoLevelInfo,
			InfoDescription: fmt.Sprintf("localization confidence %g", *push.Confidence),
		})
	}
	if push.SSID != nil && push.RSSI != nil {
		out = append(out, vda.Information{
			InfoType:        "NETWORK",
			InfoLevel:       vda.InfoLevelInfo,
			InfoDescription: fmt.Sprintf("wifi %s, rssi %gdBm", *push.SSID, *push.RSSI),
		})
	}
	if push.ControllerTemp != nil {
		level := vda.InfoLevelInfo
		if *push.ControllerTemp > 70 {
			level = vda.InfoLevel("WARNING")
		}
		out = append(out, vda.Information{
			InfoType:        "TEMPERATURE",
			InfoLevel:       level,
			InfoDescription: fmt.Sprintf("controller temperature %gC", *push.ControllerTemp),
		})
	}
	if push.Odo != nil {
		out = append(out, vda.Information{
			InfoType:        "STATISTICS",
			InfoLevel:       vda.InfoLevelInfo,
			InfoDescription: fmt.Sprintf("total odometry %gm", *push.Odo),
		})
	}
	return out
}

// describe renders an opaque vendor error entry for the description field.
func describe(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
