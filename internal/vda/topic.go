package vda

import (
	"errors"
	"fmt"
	"strings"
)

// -------------------------------------------------------------------------
// MQTT Topic Layout
// -------------------------------------------------------------------------

// DefaultTopicPrefix is the leading topic path segment shared by all six
// VDA 5050 topics: {prefix}/{manufacturer}/{serialNumber}/{kind}.
const DefaultTopicPrefix = "/uagv/v2"

// TopicKind is the final topic path segment naming the payload type.
type TopicKind string

const (
	TopicOrder          TopicKind = "order"
	TopicInstantActions TopicKind = "instantActions"
	TopicState          TopicKind = "state"
	TopicVisualization  TopicKind = "visualization"
	TopicConnection     TopicKind = "connection"
	TopicFactsheet      TopicKind = "factsheet"
)

// downlinkKinds are the topic kinds the bridge subscribes to.
var downlinkKinds = map[TopicKind]bool{
	TopicOrder:          true,
	TopicInstantActions: true,
}

// IsDownlink reports whether the kind is consumed (rather than produced)
// by the bridge.
func (k TopicKind) IsDownlink() bool {
	return downlinkKinds[k]
}

// Topic is a parsed VDA 5050 topic path.
type Topic struct {
	Manufacturer string
	SerialNumber string
	Kind         TopicKind
}

// Sentinel errors for topic parsing.
var (
	// ErrTopicShape indicates the topic does not have the expected
	// {prefix}/{manufacturer}/{serial}/{kind} layout.
	ErrTopicShape = errors.New("topic does not match prefix/manufacturer/serial/kind")

	// ErrTopicKind indicates an unrecognized final topic segment.
	ErrTopicKind = errors.New("unknown topic kind")
)

// ParseTopic splits an MQTT topic under the given prefix into its
// {manufacturer, serialNumber, kind} components.
func ParseTopic(prefix, topic string) (Topic, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return Topic{}, fmt.Errorf("parse topic %q: %w", topic, ErrTopicShape)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Topic{}, fmt.Errorf("parse topic %q: %w", topic, ErrTopicShape)
	}

	kind := TopicKind(parts[2])
	switch kind {
	case TopicOrder, TopicInstantActions, TopicState,
		TopicVisualization, TopicConnection, TopicFactsheet:
	default:
		return Topic{}, fmt.Errorf("parse topic %q: %w", topic, ErrTopicKind)
	}

	return Topic{
		Manufacturer: parts[0],
		SerialNumber: parts[1],
		Kind:         kind,
	}, nil
}

// BuildTopic assembles the topic path for one AGV and kind.
func BuildTopic(prefix, manufacturer, serial string, kind TopicKind) string {
	return prefix + "/" + manufacturer + "/" + serial + "/" + string(kind)
}

// SubscriptionFilter returns the wildcard filter matching all AGVs for the
// given kind: {prefix}/+/+/{kind}.
func SubscriptionFilter(prefix string, kind TopicKind) string {
	return prefix + "/+/+/" + string(kind)
}
