package seer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dantte-lp/vdabridge/internal/vda"
)

// This file translates VDA 5050 instant actions into vendor commands. Like
// the order translator it is pure: the task-id counter is scoped to a single
// call and all vendor-side quirks (string-typed numbers, comma-separated
// error code lists) are normalised here so the session layer only ever sees
// marshal-ready bodies.

// Command is one translated downlink packet: the port role it targets, the
// vendor message type, and a JSON-marshalable body.
type Command struct {
	Role PortRole
	Type MessageType
	Body any
}

// InstantResult is the outcome of translating one instantActions payload.
type InstantResult struct {
	// Commands are the vendor packets to send, in input order.
	Commands []Command

	// FactsheetRequest is true when at least one factsheetRequest action was
	// present. It produces no vendor packet; the supervisor answers it on
	// the fleet side.
	FactsheetRequest bool

	// Skipped lists action types unknown to the registry, for the caller
	// to log. Skipped actions do not consume a task id.
	Skipped []string
}

// TranslateInstantActions converts an instantActions payload into vendor
// commands, one per recognised action, in input order. Task ids for
// move-task-list bodies combine the payload's headerId with the 1-based
// ordinal of the action among the recognised ones.
func TranslateInstantActions(ia *vda.InstantActions) InstantResult {
	var res InstantResult

	counter := 0
	for _, action := range ia.Actions {
		if action.ActionType == ActionFactsheetRequest {
			res.FactsheetRequest = true
			continue
		}

		binding, ok := LookupAction(action.ActionType)
		if !ok {
			res.Skipped = append(res.Skipped, action.ActionType)
			continue
		}
		counter++

		var body any
		switch binding.Shape {
		case ShapeMoveTaskList:
			op, _ := OperationName(action.ActionType)
			body = MoveTaskList{Tasks: []MoveTask{{
				SourceID:  SelfPosition,
				ID:        SelfPosition,
				TaskID:    fmt.Sprintf("%d_%d", ia.HeaderID, counter),
				Operation: op,
			}}}
		case ShapeEmpty:
			body = map[string]any{}
		case ShapeParams:
			body = paramsBody(action)
		}

		res.Commands = append(res.Commands, Command{
			Role: binding.Role,
			Type: binding.Type,
			Body: body,
		})
	}

	return res
}

// paramsBody builds the flat vendor parameter object for a params-shape
// action. Only the action-specific keys are carried over; everything else in
// actionParameters is ignored.
func paramsBody(action vda.Action) map[string]any {
	params := make(map[string]any, len(action.ActionParameters))
	for _, p := range action.ActionParameters {
		params[p.Key] = p.Value
	}

	body := make(map[string]any)

	switch action.ActionType {
	case ActionReloc:
		if v, ok := params["isAuto"]; ok {
			body["isAuto"] = v
		}
		if v, ok := params["home"]; ok {
			body["home"] = v
		}
		if f, ok := floatParam(params, "length"); ok {
			body["length"] = f
		}
		// Explicit coordinates only apply to a manual relocation. When the
		// vehicle relocates automatically or to its home point the AGV
		// ignores them, so they are not sent.
		if !truthy(params["isAuto"]) && !truthy(params["home"]) {
			for _, key := range []string{"x", "y", "angle"} {
				if f, ok := floatParam(params, key); ok {
					body[key] = f
				}
			}
		}

	case ActionTranslate:
		for _, key := range []string{"dist", "vx", "vy"} {
			if f, ok := floatParam(params, key); ok {
				body[key] = f
			}
		}
		if n, ok := intParam(params, "mode"); ok {
			body["mode"] = n
		}

	case ActionTurn:
		for _, key := range []string{"angle", "vw"} {
			if f, ok := floatParam(params, key); ok {
				body[key] = f
			}
		}
		if n, ok := intParam(params, "mode"); ok {
			body["mode"] = n
		}

	case ActionRotateLoad:
		for _, key := range []string{"increase_spin_angle", "robot_spin_angle", "global_spin_angle"} {
			if f, ok := floatParam(params, key); ok {
				body[key] = f
			}
		}
		if n, ok := intParam(params, "spin_direction"); ok {
			body["spin_direction"] = n
		}

	case ActionSoftEMC:
		if v, ok := params["status"]; ok {
			body["status"] = truthy(v)
		}

	case ActionClearErrors:
		if codes, ok := errorCodes(params["error_codes"]); ok {
			body["error_codes"] = codes
		}

	default:
		// grabAuthority, releaseAuthority: parameters pass through verbatim.
		for k, v := range params {
			body[k] = v
		}
	}

	return body
}

// floatParam extracts a numeric parameter, accepting JSON numbers and
// numeric strings. Empty and unparsable strings count as absent.
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// intParam extracts an integer parameter, truncating fractional input.
func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// truthy evaluates a loosely typed flag: booleans as-is, the string "true"
// (case-insensitive), and non-zero numbers.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

// errorCodes normalises the clearErrors code list. Accepted inputs: a JSON
// array (forwarded as-is), a string holding a JSON array, or a
// comma-separated string of integers. Everything else counts as absent.
func errorCodes(v any) (any, bool) {
	switch codes := v.(type) {
	case []any:
		if len(codes) == 0 {
			return nil, false
		}
		return codes, true
	case string:
		if codes == "" {
			return nil, false
		}
		var parsed []any
		if err := json.Unmarshal([]byte(codes), &parsed); err == nil {
			return parsed, true
		}
		var ints []int
		for _, part := range strings.Split(codes, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			ints = append(ints, n)
		}
		if len(ints) == 0 {
			return nil, false
		}
		return ints, true
	default:
		return nil, false
	}
}
