package vda_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/vdabridge/internal/vda"
)

func TestParseTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		topic   string
		want    vda.Topic
		wantErr error
	}{
		{
			name:  "order topic",
			topic: "/uagv/v2/seer/AGV-001/order",
			want: vda.Topic{
				Manufacturer: "seer",
				SerialNumber: "AGV-001",
				Kind:         vda.TopicOrder,
			},
		},
		{
			name:  "instantActions topic",
			topic: "/uagv/v2/seer/AGV-001/instantActions",
			want: vda.Topic{
				Manufacturer: "seer",
				SerialNumber: "AGV-001",
				Kind:         vda.TopicInstantActions,
			},
		},
		{
			name:  "state topic",
			topic: "/uagv/v2/acme/X9/state",
			want: vda.Topic{
				Manufacturer: "acme",
				SerialNumber: "X9",
				Kind:         vda.TopicState,
			},
		},
		{
			name:    "wrong prefix",
			topic:   "/uagv/v1/seer/AGV-001/order",
			wantErr: vda.ErrTopicShape,
		},
		{
			name:    "missing serial",
			topic:   "/uagv/v2/seer/order",
			wantErr: vda.ErrTopicShape,
		},
		{
			name:    "extra segment",
			topic:   "/uagv/v2/seer/AGV-001/order/extra",
			wantErr: vda.ErrTopicShape,
		},
		{
			name:    "unknown kind",
			topic:   "/uagv/v2/seer/AGV-001/telemetry",
			wantErr: vda.ErrTopicKind,
		},
		{
			name:    "empty manufacturer",
			topic:   "/uagv/v2//AGV-001/order",
			wantErr: vda.ErrTopicShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := vda.ParseTopic(vda.DefaultTopicPrefix, tt.topic)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseTopic(%q) error = %v, want %v", tt.topic, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTopic(%q) unexpected error: %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("ParseTopic(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestBuildTopicRoundTrip(t *testing.T) {
	t.Parallel()

	topic := vda.BuildTopic(vda.DefaultTopicPrefix, "seer", "AGV-007", vda.TopicVisualization)
	if topic != "/uagv/v2/seer/AGV-007/visualization" {
		t.Fatalf("BuildTopic = %q", topic)
	}

	parsed, err := vda.ParseTopic(vda.DefaultTopicPrefix, topic)
	if err != nil {
		t.Fatalf("ParseTopic(%q) error: %v", topic, err)
	}
	if parsed.SerialNumber != "AGV-007" || parsed.Kind != vda.TopicVisualization {
		t.Errorf("round trip mismatch: %+v", parsed)
	}
}

func TestSubscriptionFilter(t *testing.T) {
	t.Parallel()

	got := vda.SubscriptionFilter(vda.DefaultTopicPrefix, vda.TopicOrder)
	want := "/uagv/v2/+/+/order"
	if got != want {
		t.Errorf("SubscriptionFilter = %q, want %q", got, want)
	}
}

func TestTopicKindIsDownlink(t *testing.T) {
	t.Parallel()

	if !vda.TopicOrder.IsDownlink() || !vda.TopicInstantActions.IsDownlink() {
		t.Error("order and instantActions must be downlink kinds")
	}
	if vda.TopicState.IsDownlink() || vda.TopicConnection.IsDownlink() {
		t.Error("uplink kinds must not report as downlink")
	}
}
