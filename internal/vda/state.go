package vda

// This file defines the state and visualization uplink payloads and their
// nested records. The state payload is the bridge's primary uplink: every
// field here is fed from the vendor state push by the uplink translator.

// OperatingMode describes who is in control of the AGV.
type OperatingMode string

const (
	OperatingModeAutomatic     OperatingMode = "AUTOMATIC"
	OperatingModeSemiAutomatic OperatingMode = "SEMIAUTOMATIC"
	OperatingModeManual        OperatingMode = "MANUAL"
	OperatingModeService       OperatingMode = "SERVICE"
	OperatingModeTeachIn       OperatingMode = "TEACHIN"
	OperatingModeEmergency     OperatingMode = "EMERGENCY"
)

// EStop describes the emergency stop condition.
type EStop string

const (
	// EStopAutoAck means no e-stop is active (auto-acknowledgeable state).
	EStopAutoAck EStop = "AUTOACK"

	// EStopManual means an e-stop requiring manual acknowledgement is active.
	EStopManual EStop = "MANUAL"

	// EStopRemote means a remote (software) e-stop is active.
	EStopRemote EStop = "REMOTE"

	// EStopTriggered means an e-stop is currently triggered.
	EStopTriggered EStop = "TRIGGERED"

	// EStopNone means the AGV has no e-stop capability.
	EStopNone EStop = "NONE"
)

// ActionStatus is the lifecycle state of an action on the AGV.
type ActionStatus string

const (
	ActionWaiting      ActionStatus = "WAITING"
	ActionInitializing ActionStatus = "INITIALIZING"
	ActionRunning      ActionStatus = "RUNNING"
	ActionPaused       ActionStatus = "PAUSED"
	ActionFinished     ActionStatus = "FINISHED"
	ActionFailed       ActionStatus = "FAILED"
)

// ErrorLevel classifies an error entry.
type ErrorLevel string

const (
	// ErrorLevelWarning flags a condition the AGV can continue operating under.
	ErrorLevelWarning ErrorLevel = "WARNING"

	// ErrorLevelFatal flags a condition that stops order execution.
	ErrorLevelFatal ErrorLevel = "FATAL"
)

// InfoLevel classifies an information entry.
type InfoLevel string

const (
	InfoLevelInfo  InfoLevel = "INFO"
	InfoLevelDebug InfoLevel = "DEBUG"
)

// AGVPosition is the AGV pose on a named map.
type AGVPosition struct {
	X                   float64  `json:"x"`
	Y                   float64  `json:"y"`
	Theta               float64  `json:"theta"`
	MapID               string   `json:"mapId"`
	MapDescription      string   `json:"mapDescription,omitempty"`
	PositionInitialized bool     `json:"positionInitialized"`
	LocalizationScore   *float64 `json:"localizationScore,omitempty"`
	DeviationRange      *float64 `json:"deviationRange,omitempty"`
}

// Velocity is the AGV velocity in the vehicle frame.
type Velocity struct {
	VX    *float64 `json:"vx,omitempty"`
	VY    *float64 `json:"vy,omitempty"`
	Omega *float64 `json:"omega,omitempty"`
}

// BatteryState describes the traction battery.
type BatteryState struct {
	BatteryCharge  float64  `json:"batteryCharge"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	BatteryHealth  *int     `json:"batteryHealth,omitempty"`
	Charging       bool     `json:"charging"`
	Reach          *float64 `json:"reach,omitempty"`
}

// SafetyState describes the safety subsystem.
type SafetyState struct {
	EStop          EStop `json:"eStop"`
	FieldViolation bool  `json:"fieldViolation"`
}

// NodeState is a node of the order graph not yet traversed.
type NodeState struct {
	NodeID          string        `json:"nodeId"`
	SequenceID      int           `json:"sequenceId"`
	NodeDescription string        `json:"nodeDescription,omitempty"`
	Released        bool          `json:"released"`
	NodePosition    *NodePosition `json:"nodePosition,omitempty"`
}

// EdgeState is an edge of the order graph not yet traversed.
type EdgeState struct {
	EdgeID          string `json:"edgeId"`
	SequenceID      int    `json:"sequenceId"`
	EdgeDescription string `json:"edgeDescription,omitempty"`
	Released        bool   `json:"released"`
}

// ActionState reports the progress of a single action.
type ActionState struct {
	ActionID          string       `json:"actionId"`
	ActionType        string       `json:"actionType,omitempty"`
	ActionDescription string       `json:"actionDescription,omitempty"`
	ActionStatus      ActionStatus `json:"actionStatus"`
	ResultDescription string       `json:"resultDescription,omitempty"`
}

// ErrorReference is a {referenceKey, referenceValue} pair on an error entry.
type ErrorReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

// Error is a single entry of the state errors array.
type Error struct {
	ErrorType        string           `json:"errorType"`
	ErrorLevel       ErrorLevel       `json:"errorLevel"`
	ErrorDescription string           `json:"errorDescription,omitempty"`
	ErrorReferences  []ErrorReference `json:"errorReferences,omitempty"`
}

// InfoReference is a {referenceKey, referenceValue} pair on an info entry.
type InfoReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

// Information is a single entry of the free-form state information array.
type Information struct {
	InfoType        string          `json:"infoType"`
	InfoLevel       InfoLevel       `json:"infoLevel"`
	InfoDescription string          `json:"infoDescription,omitempty"`
	InfoReferences  []InfoReference `json:"infoReferences,omitempty"`
}

// BoundingBoxReference anchors a load bounding box on the vehicle.
type BoundingBoxReference struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     float64  `json:"z"`
	Theta *float64 `json:"theta,omitempty"`
}

// LoadDimensions is the physical extent of a load.
type LoadDimensions struct {
	Length float64  `json:"length"`
	Width  float64  `json:"width"`
	Height *float64 `json:"height,omitempty"`
}

// Load describes a load currently carried by the AGV.
type Load struct {
	LoadID               string                `json:"loadId,omitempty"`
	LoadType             string                `json:"loadType,omitempty"`
	LoadPosition         string                `json:"loadPosition,omitempty"`
	BoundingBoxReference *BoundingBoxReference `json:"boundingBoxReference,omitempty"`
	LoadDimensions       *LoadDimensions       `json:"loadDimensions,omitempty"`
	Weight               *float64              `json:"weight,omitempty"`
}

// State is the periodic uplink payload reporting the full AGV condition.
type State struct {
	Header

	OrderID               string        `json:"orderId"`
	OrderUpdateID         int           `json:"orderUpdateId"`
	ZoneSetID             string        `json:"zoneSetId,omitempty"`
	LastNodeID            string        `json:"lastNodeId"`
	LastNodeSequenceID    int           `json:"lastNodeSequenceId"`
	Driving               bool          `json:"driving"`
	Paused                *bool         `json:"paused,omitempty"`
	NewBaseRequest        *bool         `json:"newBaseRequest,omitempty"`
	DistanceSinceLastNode *float64      `json:"distanceSinceLastNode,omitempty"`
	OperatingMode         OperatingMode `json:"operatingMode"`
	NodeStates            []NodeState   `json:"nodeStates"`
	EdgeStates            []EdgeState   `json:"edgeStates"`
	AGVPosition           *AGVPosition  `json:"agvPosition,omitempty"`
	Velocity              *Velocity     `json:"velocity,omitempty"`
	Loads                 []Load        `json:"loads,omitempty"`
	ActionStates          []ActionState `json:"actionStates"`
	BatteryState          BatteryState  `json:"batteryState"`
	Errors                []Error       `json:"errors"`
	Information           []Information `json:"information,omitempty"`
	SafetyState           SafetyState   `json:"safetyState"`
}

// Visualization is the high-rate uplink payload carrying only pose and
// velocity for live display.
type Visualization struct {
	Header

	AGVPosition *AGVPosition `json:"agvPosition,omitempty"`
	Velocity    *Velocity    `json:"velocity,omitempty"`
}
