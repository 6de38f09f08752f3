package seer

// This file implements the per-port session state machine. The FSM is a pure
// function over a transition table -- no side effects, no Session dependency.
// Side effects (closing sockets, spawning receive loops, notifications) are
// returned as actions for the caller to execute.
//
// State diagram:
//
//	                  OPEN                  OPEN SUCCESS
//	+--------------+        +------------+        +-----------+
//	| DISCONNECTED |------->| CONNECTING |------->| CONNECTED |
//	+--------------+        +------------+        +-----------+
//	       ^                  |       ^                  |
//	       |     OPEN FAILURE |       | OPEN             | READ ERROR,
//	       |                  V       |                  | WRITE ERROR,
//	       |               +------------+                | SHUTDOWN
//	       |    SHUTDOWN   |   FAILED   |                |
//	       +<--------------|            |                |
//	       |               +------------+                |
//	       +<--------------------------------------------+
//
// A session starts disconnected. A dial attempt moves it to connecting; a
// refused or timed-out dial lands in failed, where the reconnect scan picks
// it up. A socket error on an established connection returns the session to
// disconnected; the per-vehicle aggregate decides when the vehicle as a whole
// counts as failed.

// SessionState represents the lifecycle state of one (AGV, port-role) session.
type SessionState uint8

const (
	// StateDisconnected is the initial state: no socket, no dial in flight.
	StateDisconnected SessionState = iota

	// StateConnecting means a dial attempt is in flight.
	StateConnecting

	// StateConnected means the socket is established and the receive loop
	// owns it.
	StateConnected

	// StateFailed means the last dial attempt failed; the session waits for
	// the reconnect scan.
	StateFailed
)

// sessionStateNames maps session states to human-readable names.
var sessionStateNames = [4]string{
	"Disconnected",
	"Connecting",
	"Connected",
	"Failed",
}

// String returns the human-readable name of the session state.
func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return "Unknown"
}

// Event represents a session FSM event.
type Event uint8

const (
	// EventOpen is a dial request, either the initial open or a reconnect
	// scan retry.
	EventOpen Event = iota

	// EventOpenSuccess means the dial completed and the socket is live.
	EventOpenSuccess

	// EventOpenFailure means the dial was refused or timed out.
	EventOpenFailure

	// EventReadError means the receive loop hit a read error or EOF.
	EventReadError

	// EventWriteError means a send failed at the socket layer.
	EventWriteError

	// EventShutdown is the administrative close during supervisor stop.
	EventShutdown
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventOpen:
		return "Open"
	case EventOpenSuccess:
		return "OpenSuccess"
	case EventOpenFailure:
		return "OpenFailure"
	case EventReadError:
		return "ReadError"
	case EventWriteError:
		return "WriteError"
	case EventShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Action represents a side-effect to execute after an FSM transition.
// Actions are returned as part of FSMResult and executed by the caller
// (typically the session or the manager). The FSM itself is a pure function.
type Action uint8

const (
	// ActionSpawnReceive starts the receive loop on the freshly opened socket.
	ActionSpawnReceive Action = iota + 1

	// ActionCloseSocket closes the TCP socket.
	ActionCloseSocket

	// ActionNotifyUp signals consumers that this port session came up.
	ActionNotifyUp

	// ActionNotifyDown signals consumers that this port session went down.
	ActionNotifyDown

	// ActionMarkFailed hands the session's vehicle to the reconnect scan.
	ActionMarkFailed
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionSpawnReceive:
		return "SpawnReceive"
	case ActionCloseSocket:
		return "CloseSocket"
	case ActionNotifyUp:
		return "NotifyUp"
	case ActionNotifyDown:
		return "NotifyDown"
	case ActionMarkFailed:
		return "MarkFailed"
	default:
		return "Unknown"
	}
}

// stateEvent is the FSM transition table key: current state + incoming event.
type stateEvent struct {
	state SessionState
	event Event
}

// transition describes the target state and side-effects for a single
// FSM transition.
type transition struct {
	newState SessionState
	actions  []Action
}

// FSMResult holds the outcome of applying an event to the FSM.
// The caller inspects Changed to decide whether state-change processing
// (logging, metrics, notifications) is needed.
type FSMResult struct {
	// OldState is the state before the event was applied.
	OldState SessionState

	// NewState is the state after the event was applied.
	// Equal to OldState when the event is ignored or a self-loop.
	NewState SessionState

	// Actions lists the side-effects that the caller must execute.
	// Empty when the event is ignored.
	Actions []Action

	// Changed is true when NewState differs from OldState.
	Changed bool
}

// fsmTable is the complete session FSM transition table.
//
// Every (state, event) pair listed here is a valid transition. Unlisted
// pairs are silently ignored (event dropped): a write error racing a read
// error on the same dying socket applies once and the loser is a no-op.
//
//nolint:gochecknoglobals // FSM transition table is intentionally package-level.
var fsmTable = map[stateEvent]transition{
	// ===================================================================
	// Disconnected state
	// ===================================================================

	// Disconnected + Open -> Connecting. The initial dial or a reconnect
	// scan retry.
	{StateDisconnected, EventOpen}: {
		newState: StateConnecting,
		actions:  nil,
	},

	// Disconnected + Shutdown -> Disconnected. Nothing to close.
	{StateDisconnected, EventShutdown}: {
		newState: StateDisconnected,
		actions:  nil,
	},

	// ===================================================================
	// Connecting state
	// ===================================================================

	// Connecting + OpenSuccess -> Connected. The socket is live: hand it
	// to the receive loop and tell consumers the port is up.
	{StateConnecting, EventOpenSuccess}: {
		newState: StateConnected,
		actions:  []Action{ActionSpawnReceive, ActionNotifyUp},
	},

	// Connecting + OpenFailure -> Failed. The reconnect scan owns retries.
	{StateConnecting, EventOpenFailure}: {
		newState: StateFailed,
		actions:  []Action{ActionMarkFailed},
	},

	// Connecting + Shutdown -> Disconnected. The in-flight dial is
	// abandoned; its eventual outcome is discarded.
	{StateConnecting, EventShutdown}: {
		newState: StateDisconnected,
		actions:  nil,
	},

	// ===================================================================
	// Connected state
	// ===================================================================

	// Connected + ReadError -> Disconnected. The receive loop saw a read
	// error or a remote close.
	{StateConnected, EventReadError}: {
		newState: StateDisconnected,
		actions:  []Action{ActionCloseSocket, ActionNotifyDown},
	},

	// Connected + WriteError -> Disconnected. A send failed; the socket is
	// unusable.
	{StateConnected, EventWriteError}: {
		newState: StateDisconnected,
		actions:  []Action{ActionCloseSocket, ActionNotifyDown},
	},

	// Connected + Shutdown -> Disconnected. Administrative close.
	{StateConnected, EventShutdown}: {
		newState: StateDisconnected,
		actions:  []Action{ActionCloseSocket, ActionNotifyDown},
	},

	// ===================================================================
	// Failed state
	// ===================================================================

	// Failed + Open -> Connecting. Reconnect scan retry.
	{StateFailed, EventOpen}: {
		newState: StateConnecting,
		actions:  nil,
	},

	// Failed + Shutdown -> Disconnected. Leave the failed set cleanly.
	{StateFailed, EventShutdown}: {
		newState: StateDisconnected,
		actions:  nil,
	},
}

// ApplyEvent applies an FSM event to the given state and returns the result.
//
// This is a pure function with no side effects. The caller is responsible
// for executing the returned actions (closing sockets, spawning the receive
// loop, emitting notifications). If the (state, event) pair has no entry in
// the transition table, the event is silently ignored and FSMResult.Changed
// is false with an empty action list.
func ApplyEvent(currentState SessionState, event Event) FSMResult {
	key := stateEvent{state: currentState, event: event}

	tr, ok := fsmTable[key]
	if !ok {
		// Event is not applicable in this state. Stale socket errors after
		// the session already left Connected land here and are dropped.
		return FSMResult{
			OldState: currentState,
			NewState: currentState,
			Actions:  nil,
			Changed:  false,
		}
	}

	return FSMResult{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
