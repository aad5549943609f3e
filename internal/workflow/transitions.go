package workflow

import (
	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
)

// Start enters running for run id at the first checkpoint.
func Start(s *state.Store, id string) (models.WorkflowStatus, error) {
	return s.SetWorkflowStatus(models.WorkflowPatch{
		ID:       &id,
		Status:   ptr(models.WorkflowRunning),
		Progress: ptr(constants.ProgressArchitecting),
		Message:  ptr(constants.MessageArchitecting),
		Error:    ptr(""),
	})
}

// Progress updates a running run. Superseded or finished runs are ignored.
func Progress(s *state.Store, id string, progress int, message string) (bool, error) {
	cur := s.Workflow()
	if cur.ID != id || cur.Status != models.WorkflowRunning {
		return false, nil
	}
	_, err := s.SetWorkflowStatus(models.WorkflowPatch{
		Progress: &progress,
		Message:  &message,
	})
	return err == nil, err
}

// Finish marks a running run completed.
func Finish(s *state.Store, id string) (bool, error) {
	cur := s.Workflow()
	if cur.ID != id || cur.Status != models.WorkflowRunning {
		return false, nil
	}
	_, err := s.SetWorkflowStatus(models.WorkflowPatch{
		Status:   ptr(models.WorkflowCompleted),
		Progress: ptr(constants.ProgressDone),
		Message:  ptr(constants.MessageCompleted),
	})
	return err == nil, err
}

// Abort marks a running run failed with cause as its error.
func Abort(s *state.Store, id string, cause error) (bool, error) {
	cur := s.Workflow()
	if cur.ID != id || cur.Status != models.WorkflowRunning {
		return false, nil
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.SetWorkflowStatus(models.WorkflowPatch{
		Status:  ptr(models.WorkflowFailed),
		Message: ptr(string(models.WorkflowFailed)),
		Error:   &msg,
	})
	return err == nil, err
}

// Reset returns a completed or failed run to idle. It is the only way out of
// a terminal state.
func Reset(s *state.Store, id string) (bool, error) {
	cur := s.Workflow()
	if cur.ID != id || !cur.Status.Finished() {
		return false, nil
	}
	_, err := s.SetWorkflowStatus(models.WorkflowPatch{
		Status:   ptr(models.WorkflowIdle),
		Progress: ptr(0),
		Message:  ptr(""),
		Error:    ptr(""),
	})
	return err == nil, err
}

func ptr[T any](v T) *T {
	return &v
}
