package vda

// This file defines the factsheet uplink payload: the static AGV
// self-description. The blocks are populated from the per-AGV configuration
// file and published unchanged, so every struct carries matching yaml tags
// for the configuration side alongside the json wire tags.

// Factsheet is the static self-description payload. headerId and timestamp
// are optional on this topic; the remaining header fields are mandatory.
type Factsheet struct {
	HeaderID     *int   `json:"headerId,omitempty" yaml:"-"`
	Timestamp    string `json:"timestamp,omitempty" yaml:"-"`
	Version      string `json:"version" yaml:"-"`
	Manufacturer string `json:"manufacturer" yaml:"-"`
	SerialNumber string `json:"serialNumber" yaml:"-"`

	TypeSpecification  TypeSpecification  `json:"typeSpecification" yaml:"typeSpecification"`
	PhysicalParameters PhysicalParameters `json:"physicalParameters" yaml:"physicalParameters"`
	ProtocolLimits     ProtocolLimits     `json:"protocolLimits" yaml:"protocolLimits"`
	ProtocolFeatures   ProtocolFeatures   `json:"protocolFeatures" yaml:"protocolFeatures"`
	AGVGeometry        AGVGeometry        `json:"agvGeometry" yaml:"agvGeometry"`
	LoadSpecification  LoadSpecification  `json:"loadSpecification" yaml:"loadSpecification"`
}

// TypeSpecification classifies the vehicle.
type TypeSpecification struct {
	SeriesName        string   `json:"seriesName" yaml:"seriesName"`
	SeriesDescription string   `json:"seriesDescription,omitempty" yaml:"seriesDescription"`
	AGVKinematic      string   `json:"agvKinematic" yaml:"agvKinematic"`
	AGVClass          string   `json:"agvClass" yaml:"agvClass"`
	MaxLoadMass       float64  `json:"maxLoadMass" yaml:"maxLoadMass"`
	LocalizationTypes []string `json:"localizationTypes" yaml:"localizationTypes"`
	NavigationTypes   []string `json:"navigationTypes" yaml:"navigationTypes"`
}

// PhysicalParameters describes the vehicle envelope and dynamics.
type PhysicalParameters struct {
	SpeedMin        float64  `json:"speedMin" yaml:"speedMin"`
	SpeedMax        float64  `json:"speedMax" yaml:"speedMax"`
	AccelerationMax float64  `json:"accelerationMax" yaml:"accelerationMax"`
	DecelerationMax float64  `json:"decelerationMax" yaml:"decelerationMax"`
	HeightMin       *float64 `json:"heightMin,omitempty" yaml:"heightMin"`
	HeightMax       float64  `json:"heightMax" yaml:"heightMax"`
	Width           float64  `json:"width" yaml:"width"`
	Length          float64  `json:"length" yaml:"length"`
}

// MaxStringLens bounds the string lengths the AGV accepts.
type MaxStringLens struct {
	MsgLen         *int `json:"msgLen,omitempty" yaml:"msgLen"`
	TopicSerialLen *int `json:"topicSerialLen,omitempty" yaml:"topicSerialLen"`
	TopicElemLen   *int `json:"topicElemLen,omitempty" yaml:"topicElemLen"`
	IDLen          *int `json:"idLen,omitempty" yaml:"idLen"`
	EnumLen        *int `json:"enumLen,omitempty" yaml:"enumLen"`
	LoadIDLen      *int `json:"loadIdLen,omitempty" yaml:"loadIdLen"`
}

// Timing bounds the message cadences the AGV supports, in seconds.
type Timing struct {
	MinOrderInterval      float64  `json:"minOrderInterval" yaml:"minOrderInterval"`
	MinStateInterval      float64  `json:"minStateInterval" yaml:"minStateInterval"`
	DefaultStateInterval  *float64 `json:"defaultStateInterval,omitempty" yaml:"defaultStateInterval"`
	VisualizationInterval *float64 `json:"visualizationInterval,omitempty" yaml:"visualizationInterval"`
}

// ProtocolLimits bounds the protocol elements the AGV accepts.
type ProtocolLimits struct {
	MaxStringLens MaxStringLens  `json:"maxStringLens" yaml:"maxStringLens"`
	MaxArrayLens  map[string]int `json:"maxArrayLens" yaml:"maxArrayLens"`
	Timing        Timing         `json:"timing" yaml:"timing"`
}

// AGVActionParameter documents one parameter of a supported action.
type AGVActionParameter struct {
	Key           string `json:"key" yaml:"key"`
	ValueDataType string `json:"valueDataType" yaml:"valueDataType"`
	Description   string `json:"description,omitempty" yaml:"description"`
	IsOptional    *bool  `json:"isOptional,omitempty" yaml:"isOptional"`
}

// AGVAction documents one action the AGV supports.
type AGVAction struct {
	ActionType        string               `json:"actionType" yaml:"actionType"`
	ActionDescription string               `json:"actionDescription,omitempty" yaml:"actionDescription"`
	ActionScopes      []string             `json:"actionScopes" yaml:"actionScopes"`
	ActionParameters  []AGVActionParameter `json:"actionParameters,omitempty" yaml:"actionParameters"`
	ResultDescription string               `json:"resultDescription,omitempty" yaml:"resultDescription"`
}

// OptionalParameter flags support for an optional protocol element.
type OptionalParameter struct {
	Parameter   string `json:"parameter" yaml:"parameter"`
	Support     string `json:"support" yaml:"support"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// ProtocolFeatures lists supported optional elements and actions.
type ProtocolFeatures struct {
	OptionalParameters []OptionalParameter `json:"optionalParameters" yaml:"optionalParameters"`
	AGVActions         []AGVAction         `json:"agvActions" yaml:"agvActions"`
}

// PolygonPoint is a vertex of a 2D envelope polygon.
type PolygonPoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Envelope2D is a named ground-projection outline of the vehicle.
type Envelope2D struct {
	Set           string         `json:"set" yaml:"set"`
	PolygonPoints []PolygonPoint `json:"polygonPoints" yaml:"polygonPoints"`
	Description   string         `json:"description,omitempty" yaml:"description"`
}

// WheelDefinition describes one wheel of the vehicle.
type WheelDefinition struct {
	Type               string   `json:"type" yaml:"type"`
	IsActiveDriven     bool     `json:"isActiveDriven" yaml:"isActiveDriven"`
	IsActiveSteered    bool     `json:"isActiveSteered" yaml:"isActiveSteered"`
	PositionX          float64  `json:"positionX" yaml:"positionX"`
	PositionY          float64  `json:"positionY" yaml:"positionY"`
	Diameter           float64  `json:"diameter" yaml:"diameter"`
	Width              float64  `json:"width" yaml:"width"`
	CenterDisplacement *float64 `json:"centerDisplacement,omitempty" yaml:"centerDisplacement"`
}

// AGVGeometry describes the vehicle geometry.
type AGVGeometry struct {
	WheelDefinitions []WheelDefinition `json:"wheelDefinitions,omitempty" yaml:"wheelDefinitions"`
	Envelopes2D      []Envelope2D      `json:"envelopes2d,omitempty" yaml:"envelopes2d"`
}

// LoadSet describes a named combination of load type and positions.
type LoadSet struct {
	SetName       string   `json:"setName" yaml:"setName"`
	LoadType      string   `json:"loadType" yaml:"loadType"`
	LoadPositions []string `json:"loadPositions,omitempty" yaml:"loadPositions"`
	MaxWeight     *float64 `json:"maxWeight,omitempty" yaml:"maxWeight"`
	Description   string   `json:"description,omitempty" yaml:"description"`
}

// LoadSpecification lists where and what the AGV can carry.
type LoadSpecification struct {
	LoadPositions []string  `json:"loadPositions,omitempty" yaml:"loadPositions"`
	LoadSets      []LoadSet `json:"loadSets,omitempty" yaml:"loadSets"`
}
