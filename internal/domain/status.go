package domain

import "strings"

// WorkflowState tags the lifecycle stage of a workflow definition file. The
// lowercase form of the tag is the object-name prefix used to partition the
// workflows container.
type WorkflowState string

const (
	StateNew        WorkflowState = "New"
	StateInProgress WorkflowState = "InProgress"
	StateSucceeded  WorkflowState = "Succeeded"
	StateFailed     WorkflowState = "Failed"
	StateAbort      WorkflowState = "Abort"
	StateAborted    WorkflowState = "Aborted"
)

var workflowStates = map[string]WorkflowState{
	"new":        StateNew,
	"inprogress": StateInProgress,
	"succeeded":  StateSucceeded,
	"failed":     StateFailed,
	"abort":      StateAbort,
	"aborted":    StateAborted,
}

// Prefix returns the object-name prefix for the state.
func (s WorkflowState) Prefix() string {
	return strings.ToLower(string(s))
}

func (s WorkflowState) String() string {
	return string(s)
}

// ParseWorkflowState returns the known state for a label (case-insensitive).
// Unknown labels are still usable as states and are returned with ok=false.
func ParseWorkflowState(label string) (WorkflowState, bool) {
	label = strings.TrimSpace(label)
	if state, ok := workflowStates[strings.ToLower(label)]; ok {
		return state, true
	}

	return WorkflowState(label), false
}

// WorkflowStates lists the known states in lifecycle order.
func WorkflowStates() []WorkflowState {
	return []WorkflowState{StateNew, StateInProgress, StateSucceeded, StateFailed, StateAbort, StateAborted}
}
