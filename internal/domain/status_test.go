package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowStatePrefix(t *testing.T) {
	tests := []struct {
		state WorkflowState
		want  string
	}{
		{StateNew, "new"},
		{StateInProgress, "inprogress"},
		{StateAborted, "aborted"},
		{WorkflowState("Custom-Stage"), "custom-stage"},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Prefix())
		})
	}
}

func TestParseWorkflowState(t *testing.T) {
	state, ok := ParseWorkflowState("INPROGRESS")
	assert.True(t, ok)
	assert.Equal(t, StateInProgress, state)

	state, ok = ParseWorkflowState(" archived ")
	assert.False(t, ok)
	assert.Equal(t, WorkflowState("archived"), state)
	assert.Equal(t, "archived", state.Prefix())
}

func TestWorkflowStatesAreParseable(t *testing.T) {
	for _, s := range WorkflowStates() {
		parsed, ok := ParseWorkflowState(s.Prefix())
		assert.True(t, ok, s)
		assert.Equal(t, s, parsed)
	}
}
