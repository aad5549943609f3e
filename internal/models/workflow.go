package models

type WorkflowState string

const (
	WorkflowIdle      WorkflowState = "idle"
	WorkflowRunning   WorkflowState = "running"
	WorkflowCompleted WorkflowState = "completed"
	WorkflowFailed    WorkflowState = "failed"
)

// Finished reports whether the state is terminal for a run.
func (s WorkflowState) Finished() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// WorkflowStatus tracks the one decomposition run a user may have at a time.
// A fresh ID is minted every time a run enters running.
type WorkflowStatus struct {
	ID       string        `json:"id"`
	Status   WorkflowState `json:"status"`
	Progress int           `json:"progress"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// WorkflowPatch is a partial WorkflowStatus; nil fields keep their value.
type WorkflowPatch struct {
	ID       *string
	Status   *WorkflowState
	Progress *int
	Message  *string
	Error    *string
}
