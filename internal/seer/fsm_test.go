package seer_test

import (
	"slices"
	"testing"

	"github.com/dantte-lp/vdabridge/internal/seer"
)

func TestApplyEventTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       seer.SessionState
		event       seer.Event
		wantState   seer.SessionState
		wantChanged bool
		wantActions []seer.Action
	}{
		{
			name:        "disconnected open starts dial",
			state:       seer.StateDisconnected,
			event:       seer.EventOpen,
			wantState:   seer.StateConnecting,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "connecting success goes connected",
			state:       seer.StateConnecting,
			event:       seer.EventOpenSuccess,
			wantState:   seer.StateConnected,
			wantChanged: true,
			wantActions: []seer.Action{seer.ActionSpawnReceive, seer.ActionNotifyUp},
		},
		{
			name:        "connecting failure goes failed",
			state:       seer.StateConnecting,
			event:       seer.EventOpenFailure,
			wantState:   seer.StateFailed,
			wantChanged: true,
			wantActions: []seer.Action{seer.ActionMarkFailed},
		},
		{
			name:        "connected read error drops the socket",
			state:       seer.StateConnected,
			event:       seer.EventReadError,
			wantState:   seer.StateDisconnected,
			wantChanged: true,
			wantActions: []seer.Action{seer.ActionCloseSocket, seer.ActionNotifyDown},
		},
		{
			name:        "connected write error drops the socket",
			state:       seer.StateConnected,
			event:       seer.EventWriteError,
			wantState:   seer.StateDisconnected,
			wantChanged: true,
			wantActions: []seer.Action{seer.ActionCloseSocket, seer.ActionNotifyDown},
		},
		{
			name:        "connected shutdown closes and notifies",
			state:       seer.StateConnected,
			event:       seer.EventShutdown,
			wantState:   seer.StateDisconnected,
			wantChanged: true,
			wantActions: []seer.Action{seer.ActionCloseSocket, seer.ActionNotifyDown},
		},
		{
			name:        "failed open retries",
			state:       seer.StateFailed,
			event:       seer.EventOpen,
			wantState:   seer.StateConnecting,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "failed shutdown goes disconnected",
			state:       seer.StateFailed,
			event:       seer.EventShutdown,
			wantState:   seer.StateDisconnected,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "disconnected shutdown is a no-op",
			state:       seer.StateDisconnected,
			event:       seer.EventShutdown,
			wantState:   seer.StateDisconnected,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "connecting shutdown abandons the dial",
			state:       seer.StateConnecting,
			event:       seer.EventShutdown,
			wantState:   seer.StateDisconnected,
			wantChanged: true,
			wantActions: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := seer.ApplyEvent(tt.state, tt.event)

			if res.OldState != tt.state {
				t.Errorf("OldState = %v, want %v", res.OldState, tt.state)
			}
			if res.NewState != tt.wantState {
				t.Errorf("NewState = %v, want %v", res.NewState, tt.wantState)
			}
			if res.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", res.Changed, tt.wantChanged)
			}
			if !slices.Equal(res.Actions, tt.wantActions) {
				t.Errorf("Actions = %v, want %v", res.Actions, tt.wantActions)
			}
		})
	}
}

func TestApplyEventIgnoredPairs(t *testing.T) {
	t.Parallel()

	// Events that must be dropped without a transition: stale socket errors
	// after the session left Connected, dial outcomes after shutdown, and
	// open requests while a dial is already in flight.
	tests := []struct {
		name  string
		state seer.SessionState
		event seer.Event
	}{
		{"read error while disconnected", seer.StateDisconnected, seer.EventReadError},
		{"write error while disconnected", seer.StateDisconnected, seer.EventWriteError},
		{"read error while failed", seer.StateFailed, seer.EventReadError},
		{"write error while connecting", seer.StateConnecting, seer.EventWriteError},
		{"open while connecting", seer.StateConnecting, seer.EventOpen},
		{"open while connected", seer.StateConnected, seer.EventOpen},
		{"open success while connected", seer.StateConnected, seer.EventOpenSuccess},
		{"open success while disconnected", seer.StateDisconnected, seer.EventOpenSuccess},
		{"open failure while failed", seer.StateFailed, seer.EventOpenFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := seer.ApplyEvent(tt.state, tt.event)

			if res.Changed {
				t.Errorf("Changed = true, want false")
			}
			if res.NewState != tt.state {
				t.Errorf("NewState = %v, want %v", res.NewState, tt.state)
			}
			if len(res.Actions) != 0 {
				t.Errorf("Actions = %v, want none", res.Actions)
			}
		})
	}
}

func TestApplyEventReconnectCycle(t *testing.T) {
	t.Parallel()

	// Walk the full lifecycle: dial fails, scan retries, dial succeeds,
	// socket dies, shutdown.
	steps := []struct {
		event seer.Event
		want  seer.SessionState
	}{
		{seer.EventOpen, seer.StateConnecting},
		{seer.EventOpenFailure, seer.StateFailed},
		{seer.EventOpen, seer.StateConnecting},
		{seer.EventOpenSuccess, seer.StateConnected},
		{seer.EventReadError, seer.StateDisconnected},
		{seer.EventOpen, seer.StateConnecting},
		{seer.EventOpenSuccess, seer.StateConnected},
		{seer.EventShutdown, seer.StateDisconnected},
	}

	state := seer.StateDisconnected
	for i, step := range steps {
		res := seer.ApplyEvent(state, step.event)
		if res.NewState != step.want {
			t.Fatalf("step %d: ApplyEvent(%v, %v) = %v, want %v",
				i, state, step.event, res.NewState, step.want)
		}
		state = res.NewState
	}
}

func TestSessionStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state seer.SessionState
		want  string
	}{
		{seer.StateDisconnected, "Disconnected"},
		{seer.StateConnecting, "Connecting"},
		{seer.StateConnected, "Connected"},
		{seer.StateFailed, "Failed"},
		{seer.SessionState(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SessionState(%d).String() = %q, want %q", uint8(tt.state), got, tt.want)
		}
	}
}

func TestEventString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event seer.Event
		want  string
	}{
		{seer.EventOpen, "Open"},
		{seer.EventOpenSuccess, "OpenSuccess"},
		{seer.EventOpenFailure, "OpenFailure"},
		{seer.EventReadError, "ReadError"},
		{seer.EventWriteError, "WriteError"},
		{seer.EventShutdown, "Shutdown"},
		{seer.Event(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.event.String(); got != tt.want {
			t.Errorf("Event(%d).String() = %q, want %q", uint8(tt.event), got, tt.want)
		}
	}
}

func TestActionString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action seer.Action
		want   string
	}{
		{seer.ActionSpawnReceive, "SpawnReceive"},
		{seer.ActionCloseSocket, "CloseSocket"},
		{seer.ActionNotifyUp, "NotifyUp"},
		{seer.ActionNotifyDown, "NotifyDown"},
		{seer.ActionMarkFailed, "MarkFailed"},
		{seer.Action(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", uint8(tt.action), got, tt.want)
		}
	}
}
