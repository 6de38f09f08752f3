package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/dantte-lp/vdabridge/internal/config"
	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

// -------------------------------------------------------------------------
// Factsheet Assembly
// -------------------------------------------------------------------------

// Classification defaults for descriptors that do not specify their own.
const (
	defaultSeriesName   = "UNKNOWN_SERIES"
	defaultAGVKinematic = "DIFF"
	defaultAGVClass     = "CARRIER"
	defaultMaxLoadMass  = 100.0
)

// BuildFactsheet assembles the static factsheet for one robot descriptor.
// Every block starts from conservative defaults, so a minimal descriptor
// still yields a schema-complete factsheet. The free-form descriptor blocks
// (protocol_limits, protocol_features, agv_geometry, load_specification)
// use the VDA 5050 camelCase key names and win field by field over the
// defaults.
//
// The returned factsheet carries no headerId or timestamp; the publisher
// stamps both per publish.
func BuildFactsheet(d config.RobotDescriptor) (*vda.Factsheet, error) {
	ts := typeSpecification(d)
	pp := physicalParameters(d)

	fs := &vda.Factsheet{
		Version:      d.VDA5050.ProtocolVersion,
		Manufacturer: d.RobotInfo.Manufacturer,
		SerialNumber: d.Serial(),

		TypeSpecification:  ts,
		PhysicalParameters: pp,
		ProtocolLimits:     defaultProtocolLimits(),
		ProtocolFeatures:   defaultProtocolFeatures(),
		AGVGeometry:        defaultGeometry(pp),
		LoadSpecification:  defaultLoadSpecification(ts),
	}
	if fs.Version == "" {
		fs.Version = vda.ProtocolVersion
	}

	if err := overlay(d.VDA5050.ProtocolLimits, &fs.ProtocolLimits); err != nil {
		return nil, fmt.Errorf("robot %s: protocol_limits: %w", d.Serial(), err)
	}
	if err := overlay(d.VDA5050.ProtocolFeatures, &fs.ProtocolFeatures); err != nil {
		return nil, fmt.Errorf("robot %s: protocol_features: %w", d.Serial(), err)
	}
	if err := overlay(d.RobotInfo.AGVGeometry, &fs.AGVGeometry); err != nil {
		return nil, fmt.Errorf("robot %s: agv_geometry: %w", d.Serial(), err)
	}
	if err := overlay(d.RobotInfo.LoadSpecification, &fs.LoadSpecification); err != nil {
		return nil, fmt.Errorf("robot %s: load_specification: %w", d.Serial(), err)
	}

	return fs, nil
}

// overlay decodes a free-form descriptor block over pre-populated defaults.
// An empty block keeps the defaults untouched.
func overlay[T any](block map[string]any, dst *T) error {
	if len(block) == 0 {
		return nil
	}
	raw, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func ptrTo[T any](v T) *T {
	return &v
}

// -------------------------------------------------------------------------
// Block Defaults
// -------------------------------------------------------------------------

func typeSpecification(d config.RobotDescriptor) vda.TypeSpecification {
	ts := vda.TypeSpecification{
		SeriesName:        defaultSeriesName,
		SeriesDescription: d.RobotInfo.Manufacturer + " AGV series",
		AGVKinematic:      defaultAGVKinematic,
		AGVClass:          defaultAGVClass,
		MaxLoadMass:       defaultMaxLoadMass,
		LocalizationTypes: []string{"NATURAL"},
		NavigationTypes:   []string{"AUTONOMOUS"},
	}

	src := d.RobotInfo.TypeSpecification
	if src == nil {
		return ts
	}
	if src.SeriesName != "" {
		ts.SeriesName = src.SeriesName
	}
	if src.SeriesDescription != "" {
		ts.SeriesDescription = src.SeriesDescription
	}
	if src.AGVKinematic != "" {
		ts.AGVKinematic = src.AGVKinematic
	}
	if src.AGVClass != "" {
		ts.AGVClass = src.AGVClass
	}
	if src.MaxLoadMass > 0 {
		ts.MaxLoadMass = src.MaxLoadMass
	}
	if len(src.LocalizationTypes) > 0 {
		ts.LocalizationTypes = src.LocalizationTypes
	}
	if len(src.NavigationTypes) > 0 {
		ts.NavigationTypes = src.NavigationTypes
	}
	return ts
}

func physicalParameters(d config.RobotDescriptor) vda.PhysicalParameters {
	pp := vda.PhysicalParameters{
		SpeedMin:        0,
		SpeedMax:        2.0,
		AccelerationMax: 1.0,
		DecelerationMax: 1.5,
		HeightMin:       ptrTo(0.1),
		HeightMax:       2.0,
		Width:           0.8,
		Length:          1.5,
	}

	src := d.RobotInfo.PhysicalParameters
	if src == nil {
		return pp
	}
	if src.SpeedMin > 0 {
		pp.SpeedMin = src.SpeedMin
	}
	if src.SpeedMax > 0 {
		pp.SpeedMax = src.SpeedMax
	}
	if src.AccelerationMax > 0 {
		pp.AccelerationMax = src.AccelerationMax
	}
	if src.DecelerationMax > 0 {
		pp.DecelerationMax = src.DecelerationMax
	}
	if src.HeightMin > 0 {
		pp.HeightMin = ptrTo(src.HeightMin)
	}
	if src.HeightMax > 0 {
		pp.HeightMax = src.HeightMax
	}
	if src.Width > 0 {
		pp.Width = src.Width
	}
	if src.Length > 0 {
		pp.Length = src.Length
	}
	return pp
}

// defaultProtocolLimits mirrors the vendor controller's documented bounds.
func defaultProtocolLimits() vda.ProtocolLimits {
	return vda.ProtocolLimits{
		MaxStringLens: vda.MaxStringLens{
			MsgLen:         ptrTo(255),
			TopicSerialLen: ptrTo(255),
			TopicElemLen:   ptrTo(255),
			IDLen:          ptrTo(255),
			EnumLen:        ptrTo(255),
			LoadIDLen:      ptrTo(255),
		},
		MaxArrayLens: map[string]int{
			"nodes":            1000,
			"edges":            1000,
			"actions":          100,
			"actionParameters": 100,
			"nodeStates":       1000,
			"edgeStates":       1000,
			"actionStates":     100,
			"errors":           100,
			"trajectories":     1000,
			"loads":            100,
			"agvActions":       100,
			"information":      100,
		},
		Timing: vda.Timing{
			MinOrderInterval:      1.0,
			MinStateInterval:      0.1,
			DefaultStateInterval:  ptrTo(1.0),
			VisualizationInterval: ptrTo(2.0),
		},
	}
}

func defaultProtocolFeatures() vda.ProtocolFeatures {
	return vda.ProtocolFeatures{
		OptionalParameters: []vda.OptionalParameter{
			{Parameter: "orderId", Support: "SUPPORTED"},
			{Parameter: "orderUpdateId", Support: "SUPPORTED"},
			{Parameter: "zoneSetId", Support: "SUPPORTED"},
			{Parameter: "actionParameters", Support: "SUPPORTED"},
		},
		AGVActions: supportedActions(),
	}
}

// supportedActions documents every action the translation registry accepts.
// Actions with a vendor operation name ride orders as node actions; every
// registered action is accepted as an instant action. factsheetRequest is
// answered on the fleet side and never reaches the vehicle.
func supportedActions() []vda.AGVAction {
	names := seer.RegisteredActions()

	actions := make([]vda.AGVAction, 0, len(names)+1)
	for _, name := range names {
		var scopes []string
		if _, ok := seer.OperationName(name); ok {
			scopes = append(scopes, "NODE")
		}
		scopes = append(scopes, "INSTANT")
		actions = append(actions, vda.AGVAction{
			ActionType:   name,
			ActionScopes: scopes,
		})
	}
	actions = append(actions, vda.AGVAction{
		ActionType:   seer.ActionFactsheetRequest,
		ActionScopes: []string{"INSTANT"},
	})
	return actions
}

// defaultGeometry projects the physical envelope onto the ground plane.
func defaultGeometry(pp vda.PhysicalParameters) vda.AGVGeometry {
	halfL := pp.Length / 2
	halfW := pp.Width / 2
	return vda.AGVGeometry{
		Envelopes2D: []vda.Envelope2D{{
			Set: "default",
			PolygonPoints: []vda.PolygonPoint{
				{X: halfL, Y: halfW},
				{X: halfL, Y: -halfW},
				{X: -halfL, Y: -halfW},
				{X: -halfL, Y: halfW},
			},
		}},
	}
}

func defaultLoadSpecification(ts vda.TypeSpecification) vda.LoadSpecification {
	return vda.LoadSpecification{
		LoadPositions: []string{"default"},
		LoadSets: []vda.LoadSet{{
			SetName:       "default",
			LoadType:      "PALLET",
			LoadPositions: []string{"default"},
			MaxWeight:     ptrTo(ts.MaxLoadMass),
		}},
	}
}
