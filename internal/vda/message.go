// Package vda defines the VDA 5050 v2 message model: the six topic payloads
// (order, instantActions, state, visualization, connection, factsheet), their
// nested records, and the MQTT topic layout.
//
// Field names and optionality follow the VDA 5050 v2.0 JSON schemas. Fields
// that are absent on the wire are omitted on encode (omitempty / pointer
// fields); the wire format is camelCase UTF-8 JSON.
package vda

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the VDA 5050 protocol version emitted in every header.
const ProtocolVersion = "2.0.0"

// TimestampFormat is the wire timestamp layout: RFC 3339 UTC with millisecond
// precision, e.g. "2026-02-22T12:00:00.000Z".
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t as a VDA 5050 wire timestamp in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// -------------------------------------------------------------------------
// Common Header
// -------------------------------------------------------------------------

// Header carries the five fields common to every VDA 5050 message.
// It is embedded in each topic payload so the fields appear at the top
// level of the JSON object.
type Header struct {
	// HeaderID is a per-topic monotonic message counter assigned by the sender.
	HeaderID int `json:"headerId"`

	// Timestamp is the message creation time (RFC 3339 UTC).
	Timestamp string `json:"timestamp"`

	// Version is the protocol version, "2.0.0".
	Version string `json:"version"`

	// Manufacturer is the AGV manufacturer name used in the topic path.
	Manufacturer string `json:"manufacturer"`

	// SerialNumber is the AGV serial number used in the topic path.
	SerialNumber string `json:"serialNumber"`
}

// NewHeader builds a header for the given AGV identity with the current time.
func NewHeader(headerID int, manufacturer, serial string) Header {
	return Header{
		HeaderID:     headerID,
		Timestamp:    Timestamp(time.Now()),
		Version:      ProtocolVersion,
		Manufacturer: manufacturer,
		SerialNumber: serial,
	}
}

// -------------------------------------------------------------------------
// Actions
// -------------------------------------------------------------------------

// BlockingType describes how an action may overlap with vehicle motion.
type BlockingType string

const (
	// BlockingNone allows the action to run while driving, alongside others.
	BlockingNone BlockingType = "NONE"

	// BlockingSoft allows the action alongside others, but not while driving.
	BlockingSoft BlockingType = "SOFT"

	// BlockingHard requires the action to run exclusively, standing still.
	BlockingHard BlockingType = "HARD"
)

// Action is a VDA 5050 action attached to a node, an edge, or an
// instantActions message.
type Action struct {
	ActionID          string            `json:"actionId"`
	ActionType        string            `json:"actionType"`
	ActionDescription string            `json:"actionDescription,omitempty"`
	BlockingType      BlockingType      `json:"blockingType"`
	ActionParameters  []ActionParameter `json:"actionParameters,omitempty"`
}

// ActionParameter is a single {key, value} pair on an action. Value is
// schema-free: strings, numbers, booleans, arrays and objects all occur.
type ActionParameter struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Param returns the value of the named parameter and whether it was present.
func (a Action) Param(key string) (any, bool) {
	for _, p := range a.ActionParameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// -------------------------------------------------------------------------
// instantActions payload
// -------------------------------------------------------------------------

// InstantActions is the downlink payload carrying actions to execute
// immediately, outside the order graph.
type InstantActions struct {
	Header

	Actions []Action `json:"actions"`
}

// -------------------------------------------------------------------------
// connection payload
// -------------------------------------------------------------------------

// ConnectionState is the value of the connection topic.
type ConnectionState string

const (
	// ConnectionOnline means the AGV is reachable on at least one TCP port.
	ConnectionOnline ConnectionState = "ONLINE"

	// ConnectionOffline means the AGV was disconnected in an orderly fashion.
	ConnectionOffline ConnectionState = "OFFLINE"

	// ConnectionBroken means the link is up but the AGV stopped reporting.
	ConnectionBroken ConnectionState = "CONNECTIONBROKEN"
)

// Connection is the uplink payload announcing AGV reachability edges.
type Connection struct {
	Header

	ConnectionState ConnectionState `json:"connectionState"`
}

// -------------------------------------------------------------------------
// Decode helpers
// -------------------------------------------------------------------------

// DecodeOrder parses raw JSON into an Order.
func DecodeOrder(raw []byte) (*Order, error) {
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}
	return &o, nil
}

// DecodeInstantActions parses raw JSON into an InstantActions payload.
func DecodeInstantActions(raw []byte) (*InstantActions, error) {
	var ia InstantActions
	if err := json.Unmarshal(raw, &ia); err != nil {
		return nil, fmt.Errorf("decode instantActions payload: %w", err)
	}
	return &ia, nil
}
