package seer

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dantte-lp/vdabridge/internal/vda"
)

// This file translates a VDA 5050 order graph into a vendor move-task list.
// The translator is a pure function of the order and the registry; it holds
// no I/O and no state beyond the task counter scoped to one call.

// SelfPosition is the placeholder node id for in-place operations.
const SelfPosition = "SELF_POSITION"

// MoveTask is one entry of a vendor move-task list. A move step carries real
// node ids; an in-place step carries SelfPosition ids plus an operation name.
type MoveTask struct {
	SourceID  string `json:"source_id"`
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Operation string `json:"operation,omitempty"`
}

// MoveTaskList is the JSON body of a move-task-list command.
type MoveTaskList struct {
	Tasks []MoveTask `json:"move_task_list"`
}

// TranslateOrder converts a VDA 5050 order graph into an ordered move-task
// list. Node actions are emitted as in-place steps before the vehicle leaves
// the node; edge actions follow their move step. Actions with no vendor
// operation equivalent are skipped and their types returned for the caller
// to log.
//
// Task ids are orderId-scoped and strictly increasing: "{orderId}_{n}" with
// n starting at 1 across the whole translation.
func TranslateOrder(order *vda.Order) (MoveTaskList, []string) {
	var skipped []string

	counter := 0
	nextTaskID := func() string {
		counter++
		return fmt.Sprintf("%s_%d", order.OrderID, counter)
	}

	// Collect per-node pending operations. Duplicate node ids (base/horizon
	// revisits) merge into one pending list so a node's work is flushed the
	// first time an edge touches it.
	pending := make(map[string][]string, len(order.Nodes))
	nodeOrder := make([]string, 0, len(order.Nodes))
	for _, node := range order.Nodes {
		for _, action := range node.Actions {
			op, ok := OperationName(action.ActionType)
			if !ok {
				skipped = append(skipped, action.ActionType)
				continue
			}
			if _, seen := pending[node.NodeID]; !seen {
				nodeOrder = append(nodeOrder, node.NodeID)
			}
			pending[node.NodeID] = append(pending[node.NodeID], op)
		}
	}

	tasks := make([]MoveTask, 0, len(order.Edges)+len(order.Nodes))
	flush := func(nodeID string) {
		for _, op := range pending[nodeID] {
			tasks = append(tasks, MoveTask{
				SourceID:  SelfPosition,
				ID:        SelfPosition,
				TaskID:    nextTaskID(),
				Operation: op,
			})
		}
		delete(pending, nodeID)
	}

	edges := slices.Clone(order.Edges)
	slices.SortStableFunc(edges, func(a, b vda.Edge) int {
		return cmp.Compare(a.SequenceID, b.SequenceID)
	})

	for _, edge := range edges {
		flush(edge.StartNodeID)

		tasks = append(tasks, MoveTask{
			SourceID: edge.StartNodeID,
			ID:       edge.EndNodeID,
			TaskID:   nextTaskID(),
		})
		for _, action := range edge.Actions {
			op, ok := OperationName(action.ActionType)
			if !ok {
				skipped = append(skipped, action.ActionType)
				continue
			}
			tasks = append(tasks, MoveTask{
				SourceID:  SelfPosition,
				ID:        SelfPosition,
				TaskID:    nextTaskID(),
				Operation: op,
			})
		}
	}

	// The destination node's work runs after arrival.
	if len(edges) > 0 {
		flush(edges[len(edges)-1].EndNodeID)
	}

	// Nodes no edge touched (single-node orders, detached horizon nodes)
	// still get their operations, in node-list order.
	for _, nodeID := range nodeOrder {
		if _, ok := pending[nodeID]; ok {
			flush(nodeID)
		}
	}

	return MoveTaskList{Tasks: tasks}, skipped
}
