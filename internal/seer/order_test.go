package seer_test

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

func action(id, actionType string) vda.Action {
	return vda.Action{
		ActionID:     id,
		ActionType:   actionType,
		BlockingType: vda.BlockingHard,
	}
}

func TestTranslateOrderPickThenTraverse(t *testing.T) {
	t.Parallel()

	// Three nodes with a pick on the first, two plain edges. The pick must
	// run before the vehicle leaves the start node.
	order := &vda.Order{
		OrderID:       "ORD1",
		OrderUpdateID: 0,
		Nodes: []vda.Node{
			{NodeID: "N1", SequenceID: 0, Released: true, Actions: []vda.Action{action("a1", seer.ActionPick)}},
			{NodeID: "N2", SequenceID: 2, Released: true},
			{NodeID: "N3", SequenceID: 4, Released: true},
		},
		Edges: []vda.Edge{
			{EdgeID: "E1", SequenceID: 1, Released: true, StartNodeID: "N1", EndNodeID: "N2"},
			{EdgeID: "E2", SequenceID: 3, Released: true, StartNodeID: "N2", EndNodeID: "N3"},
		},
	}

	list, skipped := seer.TranslateOrder(order)
	if len(skipped) != 0 {
		t.Fatalf("skipped = %v, want none", skipped)
	}

	want := []seer.MoveTask{
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD1_1", Operation: "JackLoad"},
		{SourceID: "N1", ID: "N2", TaskID: "ORD1_2"},
		{SourceID: "N2", ID: "N3", TaskID: "ORD1_3"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderEdgesSortedBySequence(t *testing.T) {
	t.Parallel()

	// Edges arrive out of sequence order; the move steps must follow
	// sequenceId, not input order.
	order := &vda.Order{
		OrderID: "ORD2",
		Nodes: []vda.Node{
			{NodeID: "A", SequenceID: 0, Released: true},
			{NodeID: "B", SequenceID: 2, Released: true},
			{NodeID: "C", SequenceID: 4, Released: true},
		},
		Edges: []vda.Edge{
			{EdgeID: "E2", SequenceID: 3, Released: true, StartNodeID: "B", EndNodeID: "C"},
			{EdgeID: "E1", SequenceID: 1, Released: true, StartNodeID: "A", EndNodeID: "B"},
		},
	}

	list, _ := seer.TranslateOrder(order)

	want := []seer.MoveTask{
		{SourceID: "A", ID: "B", TaskID: "ORD2_1"},
		{SourceID: "B", ID: "C", TaskID: "ORD2_2"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderEdgeActionsFollowMove(t *testing.T) {
	t.Parallel()

	order := &vda.Order{
		OrderID: "ORD3",
		Nodes: []vda.Node{
			{NodeID: "A", SequenceID: 0, Released: true},
			{NodeID: "B", SequenceID: 2, Released: true, Actions: []vda.Action{action("a2", seer.ActionDrop)}},
		},
		Edges: []vda.Edge{
			{
				EdgeID: "E1", SequenceID: 1, Released: true,
				StartNodeID: "A", EndNodeID: "B",
				Actions: []vda.Action{action("a1", seer.ActionTranslate)},
			},
		},
	}

	list, _ := seer.TranslateOrder(order)

	want := []seer.MoveTask{
		{SourceID: "A", ID: "B", TaskID: "ORD3_1"},
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD3_2", Operation: "Translate"},
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD3_3", Operation: "JackUnload"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderOrphanNodeActions(t *testing.T) {
	t.Parallel()

	// A single-node order has no edges at all; its actions still run.
	order := &vda.Order{
		OrderID: "ORD4",
		Nodes: []vda.Node{
			{NodeID: "DOCK", SequenceID: 0, Released: true, Actions: []vda.Action{
				action("a1", seer.ActionPick),
				action("a2", seer.ActionTurn),
			}},
		},
	}

	list, _ := seer.TranslateOrder(order)

	want := []seer.MoveTask{
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD4_1", Operation: "JackLoad"},
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD4_2", Operation: "Turn"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderSkipsUnknownActions(t *testing.T) {
	t.Parallel()

	order := &vda.Order{
		OrderID: "ORD5",
		Nodes: []vda.Node{
			{NodeID: "A", SequenceID: 0, Released: true, Actions: []vda.Action{
				action("a1", "beep"),
				action("a2", seer.ActionPick),
			}},
			{NodeID: "B", SequenceID: 2, Released: true},
		},
		Edges: []vda.Edge{
			{EdgeID: "E1", SequenceID: 1, Released: true, StartNodeID: "A", EndNodeID: "B"},
		},
	}

	list, skipped := seer.TranslateOrder(order)

	if !slices.Equal(skipped, []string{"beep"}) {
		t.Errorf("skipped = %v, want [beep]", skipped)
	}
	want := []seer.MoveTask{
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD5_1", Operation: "JackLoad"},
		{SourceID: "A", ID: "B", TaskID: "ORD5_2"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderLastNodeActions(t *testing.T) {
	t.Parallel()

	order := &vda.Order{
		OrderID: "ORD6",
		Nodes: []vda.Node{
			{NodeID: "A", SequenceID: 0, Released: true},
			{NodeID: "B", SequenceID: 2, Released: true, Actions: []vda.Action{action("a1", seer.ActionDrop)}},
		},
		Edges: []vda.Edge{
			{EdgeID: "E1", SequenceID: 1, Released: true, StartNodeID: "A", EndNodeID: "B"},
		},
	}

	list, _ := seer.TranslateOrder(order)

	want := []seer.MoveTask{
		{SourceID: "A", ID: "B", TaskID: "ORD6_1"},
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "ORD6_2", Operation: "JackUnload"},
	}
	if !slices.Equal(list.Tasks, want) {
		t.Errorf("tasks = %+v, want %+v", list.Tasks, want)
	}
}

func TestTranslateOrderTaskIDsUniqueIncreasing(t *testing.T) {
	t.Parallel()

	order := &vda.Order{
		OrderID: "ORD7",
		Nodes: []vda.Node{
			{NodeID: "A", SequenceID: 0, Released: true, Actions: []vda.Action{action("a1", seer.ActionPick)}},
			{NodeID: "B", SequenceID: 2, Released: true, Actions: []vda.Action{action("a2", seer.ActionDrop)}},
			{NodeID: "C", SequenceID: 4, Released: true, Actions: []vda.Action{action("a3", seer.ActionTurn)}},
		},
		Edges: []vda.Edge{
			{EdgeID: "E1", SequenceID: 1, Released: true, StartNodeID: "A", EndNodeID: "B"},
			{EdgeID: "E2", SequenceID: 3, Released: true, StartNodeID: "B", EndNodeID: "C"},
		},
	}

	list, _ := seer.TranslateOrder(order)

	seen := make(map[string]bool, len(list.Tasks))
	for i, task := range list.Tasks {
		if seen[task.TaskID] {
			t.Errorf("task %d: duplicate task_id %q", i, task.TaskID)
		}
		seen[task.TaskID] = true
		if !strings.HasPrefix(task.TaskID, "ORD7_") {
			t.Errorf("task %d: task_id = %q, want ORD7_ prefix", i, task.TaskID)
		}
	}
	if len(list.Tasks) != 5 {
		t.Errorf("len(tasks) = %d, want 5", len(list.Tasks))
	}
}

func TestMoveTaskListWireShape(t *testing.T) {
	t.Parallel()

	list := seer.MoveTaskList{Tasks: []seer.MoveTask{
		{SourceID: "A", ID: "B", TaskID: "O_1"},
		{SourceID: "SELF_POSITION", ID: "SELF_POSITION", TaskID: "O_2", Operation: "JackLoad"},
	}}

	raw, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string][]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	entries, ok := decoded["move_task_list"]
	if !ok {
		t.Fatalf("body missing move_task_list key: %s", raw)
	}
	if len(entries) != 2 {
		t.Fatalf("len(move_task_list) = %d, want 2", len(entries))
	}
	if _, ok := entries[0]["operation"]; ok {
		t.Error("move step carries operation key, want omitted")
	}
	if op := entries[1]["operation"]; op != "JackLoad" {
		t.Errorf("operation = %v, want JackLoad", op)
	}
}

func TestTranslateOrderEmpty(t *testing.T) {
	t.Parallel()

	list, skipped := seer.TranslateOrder(&vda.Order{OrderID: "EMPTY"})

	if len(skipped) != 0 {
		t.Errorf("skipped = %v, want none", skipped)
	}
	if len(list.Tasks) != 0 {
		t.Errorf("tasks = %+v, want none", list.Tasks)
	}

	raw, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"move_task_list":[]}` {
		t.Errorf("body = %s, want empty array", raw)
	}
}
