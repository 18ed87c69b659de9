package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// UnknownToolError reports a dispatch for a name absent from the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// Violation is one schema constraint an argument failed.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// InvalidArgumentsError reports arguments rejected before the handler ran.
type InvalidArgumentsError struct {
	Tool       string
	Violations []Violation
}

func (e *InvalidArgumentsError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(msgs, "; "))
}

func (e *InvalidArgumentsError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// HandlerError wraps any failure raised by a tool handler, including gateway
// errors from the Herald client.
type HandlerError struct {
	Tool string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
