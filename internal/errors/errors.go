// Package errors renders failures the way flux shows them to people and to
// the agent, and exits the CLI on fatal ones.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/flux/internal/logger"
)

const (
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Format prefixes err with "Error: ". Tool results carry failures in this
// form instead of as Go errors.
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case stderrors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Fatal logs err, prints it to stderr and exits. A nil err is a no-op.
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(os.Stderr, Format(err))
	os.Exit(ExitCode(err))
}

func Fatalf(format string, args ...any) {
	Fatal(fmt.Errorf(format, args...))
}
