package agent

import (
	"context"

	"github.com/calref/forgeloop/multillm"
)

// The agent discovers capabilities on its attached components through the
// small per-pipeline interfaces below. Components are registered
// explicitly with Agent.Attach and every pipeline runs over them in
// registration order; there is no dynamic discovery.

// DirectiveProvider supplies directives merged into each proposal prompt.
type DirectiveProvider interface {
	Resources() []string
	Constraints() []string
	BestPractices() []string
}

// CommandProvider supplies the commands available this cycle. Providers
// are polled fresh every cycle, so command sets may vary over time.
// Commands from later providers shadow earlier ones with the same name.
type CommandProvider interface {
	Commands() []*Command
}

// MessageProvider supplies conversation messages for the proposal prompt.
type MessageProvider interface {
	Messages() []multillm.Message
}

// AfterParse is notified with every successfully parsed proposal. The
// hook must not modify the proposal.
type AfterParse interface {
	AfterParse(ctx context.Context, proposal *ActionProposal) error
}

// AfterExecute is notified with the final result of every cycle,
// including declined proposals.
type AfterExecute interface {
	AfterExecute(ctx context.Context, result *ActionResult) error
}
