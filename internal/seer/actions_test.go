package seer_test

import (
	"encoding/json"
	"reflect"
	"slices"
	"testing"

	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

func paramAction(actionType string, params ...vda.ActionParameter) vda.Action {
	return vda.Action{
		ActionID:         "a-" + actionType,
		ActionType:       actionType,
		BlockingType:     vda.BlockingNone,
		ActionParameters: params,
	}
}

// bodyObject marshals a command body and decodes it back into a generic map
// so tests compare wire shapes, not Go types.
func bodyObject(t *testing.T, body any) map[string]any {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", raw, err)
	}
	return obj
}

func TestTranslateInstantActionsMixedKinds(t *testing.T) {
	t.Parallel()

	ia := &vda.InstantActions{
		Header: vda.Header{HeaderID: 7},
		Actions: []vda.Action{
			paramAction(seer.ActionStartPause),
			paramAction(seer.ActionReloc,
				vda.ActionParameter{Key: "x", Value: 1.0},
				vda.ActionParameter{Key: "y", Value: 2.0},
				vda.ActionParameter{Key: "angle", Value: 0.0},
			),
		},
	}

	res := seer.TranslateInstantActions(ia)

	if len(res.Skipped) != 0 {
		t.Fatalf("Skipped = %v, want none", res.Skipped)
	}
	if len(res.Commands) != 2 {
		t.Fatalf("len(Commands) = %d, want 2", len(res.Commands))
	}

	pause := res.Commands[0]
	if pause.Role != seer.RoleMovement || pause.Type != seer.TypePause {
		t.Errorf("command 0 = (%v, %v), want (movement, %v)", pause.Role, pause.Type, seer.TypePause)
	}
	if got := bodyObject(t, pause.Body); len(got) != 0 {
		t.Errorf("pause body = %v, want empty object", got)
	}

	reloc := res.Commands[1]
	if reloc.Role != seer.RoleRelocation || reloc.Type != seer.TypeReloc {
		t.Errorf("command 1 = (%v, %v), want (relocation, %v)", reloc.Role, reloc.Type, seer.TypeReloc)
	}
	want := map[string]any{"x": 1.0, "y": 2.0, "angle": 0.0}
	if got := bodyObject(t, reloc.Body); !reflect.DeepEqual(got, want) {
		t.Errorf("reloc body = %v, want %v", got, want)
	}
}

func TestTranslateInstantActionsPickTaskID(t *testing.T) {
	t.Parallel()

	// The task-id ordinal counts recognised actions, so a pick after a
	// pause is the second task of header 12345.
	ia := &vda.InstantActions{
		Header: vda.Header{HeaderID: 12345},
		Actions: []vda.Action{
			paramAction(seer.ActionStartPause),
			paramAction(seer.ActionPick),
		},
	}

	res := seer.TranslateInstantActions(ia)
	if len(res.Commands) != 2 {
		t.Fatalf("len(Commands) = %d, want 2", len(res.Commands))
	}

	pick := res.Commands[1]
	if pick.Type != seer.TypeMoveTaskList {
		t.Fatalf("pick type = %v, want %v", pick.Type, seer.TypeMoveTaskList)
	}
	list, ok := pick.Body.(seer.MoveTaskList)
	if !ok {
		t.Fatalf("pick body type = %T, want MoveTaskList", pick.Body)
	}
	want := []seer.MoveTask{{
		SourceID:  "SELF_POSITION",
		ID:        "SELF_POSITION",
		TaskID:    "12345_2",
		Operation: "JackLoad",
	}}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateInstantActionsRelocGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params []vda.ActionParameter
		want   map[string]any
	}{
		{
			name: "manual reloc keeps coordinates",
			params: []vda.ActionParameter{
				{Key: "isAuto", Value: false},
				{Key: "home", Value: false},
				{Key: "x", Value: 10.5},
				{Key: "y", Value: 8.2},
				{Key: "angle", Value: 1.57},
			},
			want: map[string]any{"isAuto": false, "home": false, "x": 10.5, "y": 8.2, "angle": 1.57},
		},
		{
			name: "auto reloc drops coordinates",
			params: []vda.ActionParameter{
				{Key: "isAuto", Value: true},
				{Key: "x", Value: 10.5},
				{Key: "y", Value: 8.2},
			},
			want: map[string]any{"isAuto": true},
		},
		{
			name: "home reloc drops coordinates",
			params: []vda.ActionParameter{
				{Key: "home", Value: "true"},
				{Key: "angle", Value: 3.0},
			},
			want: map[string]any{"home": "true"},
		},
		{
			name: "length coerced from string",
			params: []vda.ActionParameter{
				{Key: "length", Value: "2.5"},
			},
			want: map[string]any{"length": 2.5},
		},
		{
			name: "empty string coordinates omitted",
			params: []vda.ActionParameter{
				{Key: "x", Value: ""},
				{Key: "y", Value: 4.0},
			},
			want: map[string]any{"y": 4.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ia := &vda.InstantActions{Actions: []vda.Action{paramAction(seer.ActionReloc, tt.params...)}}
			res := seer.TranslateInstantActions(ia)
			if len(res.Commands) != 1 {
				t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
			}
			if got := bodyObject(t, res.Commands[0].Body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("body = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateInstantActionsMotionParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action vda.Action
		want   map[string]any
	}{
		{
			name: "translate coerces numerics",
			action: paramAction(seer.ActionTranslate,
				vda.ActionParameter{Key: "dist", Value: "1.5"},
				vda.ActionParameter{Key: "vx", Value: 0.5},
				vda.ActionParameter{Key: "mode", Value: 1.0},
			),
			want: map[string]any{"dist": 1.5, "vx": 0.5, "mode": 1.0},
		},
		{
			name: "turn required pair",
			action: paramAction(seer.ActionTurn,
				vda.ActionParameter{Key: "angle", Value: 1.57},
				vda.ActionParameter{Key: "vw", Value: 0.3},
			),
			want: map[string]any{"angle": 1.57, "vw": 0.3},
		},
		{
			name: "rotateLoad spin fields",
			action: paramAction(seer.ActionRotateLoad,
				vda.ActionParameter{Key: "increase_spin_angle", Value: 90.0},
				vda.ActionParameter{Key: "spin_direction", Value: 1.0},
				vda.ActionParameter{Key: "unrelated", Value: "x"},
			),
			want: map[string]any{"increase_spin_angle": 90.0, "spin_direction": 1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ia := &vda.InstantActions{Actions: []vda.Action{tt.action}}
			res := seer.TranslateInstantActions(ia)
			if len(res.Commands) != 1 {
				t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
			}
			if got := bodyObject(t, res.Commands[0].Body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("body = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateInstantActionsSoftEmc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string true", "true", true},
		{"string TRUE", "TRUE", true},
		{"string false", "false", false},
		{"number one", 1.0, true},
		{"number zero", 0.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ia := &vda.InstantActions{Actions: []vda.Action{
				paramAction(seer.ActionSoftEMC, vda.ActionParameter{Key: "status", Value: tt.value}),
			}}
			res := seer.TranslateInstantActions(ia)
			if len(res.Commands) != 1 {
				t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
			}
			cmd := res.Commands[0]
			if cmd.Role != seer.RoleSafety || cmd.Type != seer.TypeSoftEMC {
				t.Errorf("command = (%v, %v), want (safety, %v)", cmd.Role, cmd.Type, seer.TypeSoftEMC)
			}
			if got := bodyObject(t, cmd.Body); got["status"] != tt.want {
				t.Errorf("status = %v, want %v", got["status"], tt.want)
			}
		})
	}
}

func TestTranslateInstantActionsClearErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  map[string]any
	}{
		{
			name:  "list forwarded",
			value: []any{54001.0, 54002.0},
			want:  map[string]any{"error_codes": []any{54001.0, 54002.0}},
		},
		{
			name:  "json string parsed",
			value: "[54001, 54002]",
			want:  map[string]any{"error_codes": []any{54001.0, 54002.0}},
		},
		{
			name:  "comma string parsed",
			value: "54001, 54002 ,54003",
			want:  map[string]any{"error_codes": []any{54001.0, 54002.0, 54003.0}},
		},
		{
			name:  "garbage omitted",
			value: "not, numbers",
			want:  map[string]any{},
		},
		{
			name:  "empty list omitted",
			value: []any{},
			want:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ia := &vda.InstantActions{Actions: []vda.Action{
				paramAction(seer.ActionClearErrors, vda.ActionParameter{Key: "error_codes", Value: tt.value}),
			}}
			res := seer.TranslateInstantActions(ia)
			if len(res.Commands) != 1 {
				t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
			}
			if got := bodyObject(t, res.Commands[0].Body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("body = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateInstantActionsAuthorityPassthrough(t *testing.T) {
	t.Parallel()

	ia := &vda.InstantActions{Actions: []vda.Action{
		paramAction(seer.ActionGrabAuthority, vda.ActionParameter{Key: "nick_name", Value: "fleet-1"}),
	}}

	res := seer.TranslateInstantActions(ia)
	if len(res.Commands) != 1 {
		t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
	}
	cmd := res.Commands[0]
	if cmd.Role != seer.RoleAuthority || cmd.Type != seer.TypeGrabAuthority {
		t.Errorf("command = (%v, %v), want (authority, %v)", cmd.Role, cmd.Type, seer.TypeGrabAuthority)
	}
	want := map[string]any{"nick_name": "fleet-1"}
	if got := bodyObject(t, cmd.Body); !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

func TestTranslateInstantActionsUnknownSkipped(t *testing.T) {
	t.Parallel()

	ia := &vda.InstantActions{
		Header: vda.Header{HeaderID: 3},
		Actions: []vda.Action{
			paramAction("beep"),
			paramAction(seer.ActionCancelOrder),
			paramAction("initPosition"),
		},
	}

	res := seer.TranslateInstantActions(ia)

	if !slices.Equal(res.Skipped, []string{"beep", "initPosition"}) {
		t.Errorf("Skipped = %v, want [beep initPosition]", res.Skipped)
	}
	if len(res.Commands) != 1 {
		t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
	}
	if res.Commands[0].Type != seer.TypeCancel {
		t.Errorf("command type = %v, want %v", res.Commands[0].Type, seer.TypeCancel)
	}
}

func TestTranslateInstantActionsFactsheetRequest(t *testing.T) {
	t.Parallel()

	ia := &vda.InstantActions{Actions: []vda.Action{
		paramAction(seer.ActionFactsheetRequest),
		paramAction(seer.ActionPick),
	}}

	res := seer.TranslateInstantActions(ia)

	if !res.FactsheetRequest {
		t.Error("FactsheetRequest = false, want true")
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", res.Skipped)
	}
	// The factsheet request consumes no task id: pick is the first task.
	if len(res.Commands) != 1 {
		t.Fatalf("len(Commands) = %d, want 1", len(res.Commands))
	}
	list, ok := res.Commands[0].Body.(seer.MoveTaskList)
	if !ok {
		t.Fatalf("body type = %T, want MoveTaskList", res.Commands[0].Body)
	}
	if list.Tasks[0].TaskID != "0_1" {
		t.Errorf("task_id = %q, want 0_1", list.Tasks[0].TaskID)
	}
}
