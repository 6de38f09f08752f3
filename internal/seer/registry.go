package seer

import (
	"fmt"
	"slices"
)

// This file is the action registry: the static binding of VDA 5050 action
// names to (port role, message type, body shape) triples, plus the vendor
// operation names used inside move-task lists. The table is the protocol
// contract between the fleet plane and the AGVs; changing an entry changes
// which socket and which command code an action lands on.

// -------------------------------------------------------------------------
// Port Roles
// -------------------------------------------------------------------------

// PortRole is the functional category of a vendor TCP port. Every AGV
// assigns its own port number per role; the registry speaks only in roles.
type PortRole uint8

const (
	// RoleStatePush is the port the AGV pushes periodic state reports on.
	RoleStatePush PortRole = iota

	// RoleRelocation carries relocation commands.
	RoleRelocation

	// RoleMovement carries move-task lists and motion commands.
	RoleMovement

	// RoleAuthority carries control-authority and error-management commands.
	RoleAuthority

	// RoleSafety carries safety commands (software emergency stop).
	RoleSafety
)

// roleNames maps port roles to human-readable names.
var roleNames = [5]string{
	"state-push",
	"relocation",
	"movement",
	"authority",
	"safety",
}

// String returns the human-readable name of the port role.
func (r PortRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(r))
}

// AllRoles lists every port role in declaration order.
func AllRoles() []PortRole {
	return []PortRole{RoleStatePush, RoleRelocation, RoleMovement, RoleAuthority, RoleSafety}
}

// -------------------------------------------------------------------------
// Body Shapes
// -------------------------------------------------------------------------

// BodyShape selects how a command body is generated from an action.
type BodyShape uint8

const (
	// ShapeMoveTaskList wraps the action in a single-entry move-task list.
	ShapeMoveTaskList BodyShape = iota + 1

	// ShapeEmpty sends "{}" regardless of the action's parameters.
	ShapeEmpty

	// ShapeParams sends a flat JSON object of action-specific parameters.
	ShapeParams
)

// String returns the human-readable name of the body shape.
func (s BodyShape) String() string {
	switch s {
	case ShapeMoveTaskList:
		return "move-task-list"
	case ShapeEmpty:
		return "empty"
	case ShapeParams:
		return "params"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// -------------------------------------------------------------------------
// VDA 5050 Action Names
// -------------------------------------------------------------------------

// Action type strings as they appear in order and instantActions payloads.
const (
	ActionPick             = "pick"
	ActionDrop             = "drop"
	ActionStartPause       = "startPause"
	ActionStopPause        = "stopPause"
	ActionCancelOrder      = "cancelOrder"
	ActionTranslate        = "translate"
	ActionTurn             = "turn"
	ActionRotateLoad       = "rotateLoad"
	ActionReloc            = "reloc"
	ActionCancelReloc      = "cancelReloc"
	ActionClearErrors      = "clearErrors"
	ActionGrabAuthority    = "grabAuthority"
	ActionReleaseAuthority = "releaseAuthority"
	ActionSoftEMC          = "softEmc"
	ActionFactsheetRequest = "factsheetRequest"
)

// -------------------------------------------------------------------------
// Registry
// -------------------------------------------------------------------------

// Binding is the registry entry for one action: which port role it targets,
// which message type it uses, and how its body is built.
type Binding struct {
	Role  PortRole
	Type  MessageType
	Shape BodyShape
}

// actionBindings is the complete action registry.
//
//nolint:gochecknoglobals // registry table is intentionally package-level.
var actionBindings = map[string]Binding{
	ActionPick:             {RoleMovement, TypeMoveTaskList, ShapeMoveTaskList},
	ActionDrop:             {RoleMovement, TypeMoveTaskList, ShapeMoveTaskList},
	ActionStartPause:       {RoleMovement, TypePause, ShapeEmpty},
	ActionStopPause:        {RoleMovement, TypeResume, ShapeEmpty},
	ActionCancelOrder:      {RoleMovement, TypeCancel, ShapeEmpty},
	ActionTranslate:        {RoleMovement, TypeTranslate, ShapeParams},
	ActionTurn:             {RoleMovement, TypeTurn, ShapeParams},
	ActionRotateLoad:       {RoleMovement, TypeRotateLoad, ShapeParams},
	ActionReloc:            {RoleRelocation, TypeReloc, ShapeParams},
	ActionCancelReloc:      {RoleRelocation, TypeCancelReloc, ShapeEmpty},
	ActionClearErrors:      {RoleAuthority, TypeClearErrors, ShapeParams},
	ActionGrabAuthority:    {RoleAuthority, TypeGrabAuthority, ShapeParams},
	ActionReleaseAuthority: {RoleAuthority, TypeReleaseAuthority, ShapeParams},
	ActionSoftEMC:          {RoleSafety, TypeSoftEMC, ShapeParams},
}

// LookupAction returns the registry binding for a VDA 5050 action type.
func LookupAction(actionType string) (Binding, bool) {
	b, ok := actionBindings[actionType]
	return b, ok
}

// RegisteredActions returns the action type names in the registry, sorted.
// Used for the factsheet agvActions listing.
func RegisteredActions() []string {
	names := make([]string, 0, len(actionBindings))
	for name := range actionBindings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// -------------------------------------------------------------------------
// Vendor Operation Names
// -------------------------------------------------------------------------

// operationNames maps VDA 5050 action types to the vendor operation strings
// used inside move-task list entries.
var operationNames = map[string]string{
	ActionPick:        "JackLoad",
	ActionDrop:        "JackUnload",
	ActionTranslate:   "Translate",
	ActionTurn:        "Turn",
	ActionRotateLoad:  "RotateLoad",
	ActionSoftEMC:     "EmergencyStop",
	ActionStartPause:  "Pause",
	ActionStopPause:   "Resume",
	ActionCancelOrder: "Cancel",
	ActionReloc:       "Reloc",
	ActionCancelReloc: "CancelReloc",
	ActionClearErrors: "ClearErrors",
}

// OperationName returns the vendor operation string for a VDA 5050 action
// type, or false when the action has no in-place operation form.
func OperationName(actionType string) (string, bool) {
	op, ok := operationNames[actionType]
	return op, ok
}
