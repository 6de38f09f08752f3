package vda

// This file defines the order topic payload: a graph of nodes and edges with
// attached actions. sequenceId attributes give the traversal order; even
// values are nodes, odd values are edges.

// Order is the downlink payload describing a navigation plan.
type Order struct {
	Header

	// OrderID identifies the order; task ids derived from the order embed it.
	OrderID string `json:"orderId"`

	// OrderUpdateID distinguishes successive updates of the same order.
	OrderUpdateID int `json:"orderUpdateId"`

	// ZoneSetID selects the zone set the order was planned against.
	ZoneSetID string `json:"zoneSetId,omitempty"`

	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a vertex of the order graph.
type Node struct {
	NodeID          string        `json:"nodeId"`
	SequenceID      int           `json:"sequenceId"`
	NodeDescription string        `json:"nodeDescription,omitempty"`
	Released        bool          `json:"released"`
	NodePosition    *NodePosition `json:"nodePosition,omitempty"`
	Actions         []Action      `json:"actions"`
}

// Edge is a directed connection between two nodes of the order graph.
type Edge struct {
	EdgeID           string   `json:"edgeId"`
	SequenceID       int      `json:"sequenceId"`
	EdgeDescription  string   `json:"edgeDescription,omitempty"`
	Released         bool     `json:"released"`
	StartNodeID      string   `json:"startNodeId"`
	EndNodeID        string   `json:"endNodeId"`
	MaxSpeed         *float64 `json:"maxSpeed,omitempty"`
	MaxHeight        *float64 `json:"maxHeight,omitempty"`
	MinHeight        *float64 `json:"minHeight,omitempty"`
	Orientation      *float64 `json:"orientation,omitempty"`
	Direction        string   `json:"direction,omitempty"`
	RotationAllowed  *bool    `json:"rotationAllowed,omitempty"`
	MaxRotationSpeed *float64 `json:"maxRotationSpeed,omitempty"`
	Length           *float64 `json:"length,omitempty"`
	Actions          []Action `json:"actions"`
}

// NodePosition is the map-relative pose of a node.
type NodePosition struct {
	X                     float64  `json:"x"`
	Y                     float64  `json:"y"`
	Theta                 *float64 `json:"theta,omitempty"`
	AllowedDeviationXY    *float64 `json:"allowedDeviationXY,omitempty"`
	AllowedDeviationTheta *float64 `json:"allowedDeviationTheta,omitempty"`
	MapID                 string   `json:"mapId"`
	MapDescription        string   `json:"mapDescription,omitempty"`
}
