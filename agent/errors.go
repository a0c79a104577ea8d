package agent

import (
	"errors"
	"fmt"
)

// AgentError is the base type for recognized domain-level failures. Any
// error in this family raised by a command becomes the cycle's Error
// result instead of propagating.
type AgentError struct {
	Message string
	Cause   error

	// Hint is an optional message shown to the model alongside the error.
	Hint string
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// ModelHint returns the optional guidance appended to the error text shown
// to the model.
func (e *AgentError) ModelHint() string {
	return e.Hint
}

// agentFailure marks the recognized failure family for errors.As matching.
func (e *AgentError) agentFailure() {}

type agentFailure interface {
	agentFailure()
}

// IsAgentError reports whether err belongs to the recognized failure
// family (as opposed to an unexpected error from command internals).
func IsAgentError(err error) bool {
	var af agentFailure
	return errors.As(err, &af)
}

// UnknownCommandError indicates the model requested a command that no
// registered provider supplies. Usually a hallucinated tool name.
type UnknownCommandError struct {
	AgentError
	Name string
}

// NewUnknownCommandError creates an UnknownCommandError for name.
func NewUnknownCommandError(name string) *UnknownCommandError {
	return &UnknownCommandError{
		AgentError: AgentError{
			Message: fmt.Sprintf("cannot execute command %q: unknown command", name),
			Hint:    "Do not try to use this command again.",
		},
		Name: name,
	}
}

// CommandExecutionError wraps an unexpected failure raised while a
// command was running.
type CommandExecutionError struct {
	AgentError
}

// NewCommandExecutionError wraps cause into a CommandExecutionError.
func NewCommandExecutionError(cause error) *CommandExecutionError {
	return &CommandExecutionError{
		AgentError: AgentError{Message: "command execution error", Cause: cause},
	}
}

// InvalidArgumentError indicates a command rejected the arguments it was
// invoked with.
type InvalidArgumentError struct {
	AgentError
}

// NewInvalidArgumentError creates an InvalidArgumentError.
func NewInvalidArgumentError(format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{
		AgentError: AgentError{Message: fmt.Sprintf(format, args...)},
	}
}

// AccessDeniedError indicates a command refused to act because the agent
// lacks permission for the requested operation.
type AccessDeniedError struct {
	AgentError
}

// NewAccessDeniedError creates an AccessDeniedError.
func NewAccessDeniedError(format string, args ...any) *AccessDeniedError {
	return &AccessDeniedError{
		AgentError: AgentError{Message: fmt.Sprintf(format, args...)},
	}
}

// ResponseError indicates the model's reply could not be parsed into a
// proposal. Recoverable: callers are expected to retry the proposal with
// the error text appended to the prompt.
type ResponseError struct {
	AgentError

	// Raw is the unparsed reply content, for diagnostics.
	Raw string
}

// NewResponseError creates a ResponseError for an unparseable reply.
func NewResponseError(message, raw string) *ResponseError {
	return &ResponseError{
		AgentError: AgentError{Message: message},
		Raw:        raw,
	}
}

// TerminatedError is the sole fatal signal. It is deliberately NOT part
// of the AgentError family: it propagates unchanged through Execute and
// every layer above it, ending the session. Matched structurally with
// errors.As, never by message text.
type TerminatedError struct {
	Reason string
}

func (e *TerminatedError) Error() string {
	if e.Reason == "" {
		return "agent terminated"
	}
	return "agent terminated: " + e.Reason
}

// IsTerminated reports whether err carries the terminate signal.
func IsTerminated(err error) bool {
	var term *TerminatedError
	return errors.As(err, &term)
}
