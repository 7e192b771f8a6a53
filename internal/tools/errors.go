package tools

import (
	"errors"
	"fmt"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ToolError is the failure a tool call reports to the client. Err keeps the
// cause so callers can still match it with errors.Is.
type ToolError struct {
	Code    int
	Kind    orca.ErrorKind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func NewToolNotFoundError(name string) *ToolError {
	return &ToolError{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("Tool not found: %s", name),
	}
}

func NewInvalidParamsError(name string, err error) *ToolError {
	return &ToolError{
		Code:    CodeInvalidParams,
		Kind:    orca.KindInvalidInput,
		Message: fmt.Sprintf("Invalid arguments for tool %s: %v", name, err),
		Err:     err,
	}
}

func NewToolExecutionError(name string, err error) *ToolError {
	return &ToolError{
		Code:    CodeInternalError,
		Kind:    orca.KindInternal,
		Message: fmt.Sprintf("Error executing tool %s: %v", name, err),
		Err:     err,
	}
}

// FromError maps a tool failure to a ToolError by its kind: invalid input and
// unsupported parameters are the caller's fault, anything else is internal.
func FromError(name string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	kind := orca.KindOf(err)
	switch kind {
	case orca.KindInvalidInput, orca.KindUnsupported:
		return &ToolError{
			Code:    CodeInvalidParams,
			Kind:    kind,
			Message: fmt.Sprintf("Invalid arguments for tool %s: %v", name, err),
			Err:     err,
		}
	}
	return &ToolError{
		Code:    CodeInternalError,
		Kind:    kind,
		Message: fmt.Sprintf("Error executing tool %s: %v", name, err),
		Err:     err,
	}
}
