package tools

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolInputInvalid = errors.New("invalid tool input")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrNoPendingCall    = errors.New("no pending tool call")
	ErrInvalidDecision  = errors.New("decision must be an approval or a denial")
	ErrNoTaskScheduler  = errors.New("task scheduling is not configured")
)

// InputError lists every problem found in one tool input.
type InputError struct {
	Tool     string
	Problems []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

func (e *InputError) Is(target error) bool {
	return target == ErrToolInputInvalid
}

type problems struct {
	tool string
	list []string
}

func (p *problems) add(format string, args ...any) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

func (p *problems) err() error {
	if len(p.list) == 0 {
		return nil
	}
	return &InputError{Tool: p.tool, Problems: p.list}
}
