package agent

import (
	"errors"
	"fmt"

	"github.com/calref/forgeloop/multillm"
)

// ActionProposal is the model's decision for one cycle: a single command
// to invoke (or none) plus optional free-text reasoning. Immutable once
// produced; consumed by Execute or DoNotExecute in the same cycle.
type ActionProposal struct {
	// Thoughts is the model's reasoning for the chosen action.
	Thoughts string `json:"thoughts,omitempty"`

	// UseTool names the command to invoke and its arguments. Nil means the
	// model produced a terminal direct response instead of an action.
	UseTool *multillm.AssistantFunctionCall `json:"use_tool,omitempty"`

	// RawResponse is the unparsed model output, kept for history replay.
	RawResponse string `json:"raw_response,omitempty"`
}

// ResultStatus discriminates the ActionResult variants.
type ResultStatus string

const (
	StatusSuccess     ResultStatus = "success"
	StatusError       ResultStatus = "error"
	StatusInterrupted ResultStatus = "interrupted_by_human"
)

// ActionResult is the outcome of executing (or declining) a proposal.
// Exactly one variant per cycle; never mutated after creation.
type ActionResult struct {
	Status ResultStatus `json:"status"`

	// Outputs is the opaque success payload.
	Outputs any `json:"outputs,omitempty"`

	// Reason describes an error outcome. Err, when set, is the failure it
	// was derived from.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`

	// Feedback carries the human's message on the interrupted path.
	Feedback string `json:"feedback,omitempty"`
}

// SuccessResult creates a Success variant carrying outputs.
func SuccessResult(outputs any) *ActionResult {
	return &ActionResult{Status: StatusSuccess, Outputs: outputs}
}

// ErrorResult creates an Error variant with a reason string.
func ErrorResult(reason string) *ActionResult {
	return &ActionResult{Status: StatusError, Reason: reason}
}

// ErrorResultFromErr creates an Error variant derived from a failure.
func ErrorResultFromErr(err error) *ActionResult {
	return &ActionResult{Status: StatusError, Reason: err.Error(), Err: err}
}

// InterruptedResult creates an InterruptedByHuman variant carrying the
// operator's feedback verbatim.
func InterruptedResult(feedback string) *ActionResult {
	return &ActionResult{Status: StatusInterrupted, Feedback: feedback}
}

// String renders the result the way it is measured against the token
// budget and shown to the model in the next prompt.
func (r *ActionResult) String() string {
	switch r.Status {
	case StatusSuccess:
		if s, ok := r.Outputs.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", r.Outputs)
	case StatusError:
		var hint string
		var h interface{ ModelHint() string }
		if r.Err != nil && errors.As(r.Err, &h) && h.ModelHint() != "" {
			hint = " " + h.ModelHint()
		}
		return fmt.Sprintf("Action failed: %s%s", r.Reason, hint)
	case StatusInterrupted:
		return fmt.Sprintf("The user interrupted the action: %s", r.Feedback)
	default:
		return ""
	}
}
