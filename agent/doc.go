// Package agent implements the action proposal and execution loop at the
// heart of an autonomous agent.
//
// Each cycle, the Agent gathers directives, commands, and conversation
// messages from an ordered set of registered components, builds a single
// chat prompt, asks the model backend for a structured reply, and parses
// it into an ActionProposal naming one command and its arguments. The
// caller then either executes the proposal or declines it on the user's
// behalf; either way the outcome is an ActionResult fed back to the
// components (and thus into the next prompt) so the model can observe what
// happened.
//
// # Architecture
//
//   - Agent: the orchestrator exposing ProposeAction, Execute, and
//     DoNotExecute.
//   - Command: a named, invokable capability with optional aliases.
//     Resolution is last-registered-wins, so components attached later can
//     shadow built-in commands of the same name.
//   - Component pipelines: ordered collaborators implementing the small
//     per-concern interfaces in protocols.go (DirectiveProvider,
//     CommandProvider, MessageProvider, AfterParse, AfterExecute).
//   - PromptStrategy: pluggable prompt construction and reply parsing;
//     OneShotStrategy is the built-in JSON single-action strategy.
//   - EventEmitter: typed monitoring stream for the host application.
//
// Failure handling is deliberately asymmetric: every command failure is
// captured into an Error ActionResult and shown to the model on the next
// cycle, while a TerminatedError raised by a command (the finish command,
// typically) propagates out of Execute untouched and ends the session.
//
// # Quick Start
//
//	llm := multillm.NewCompleter("anthropic", "claude-sonnet-4-5-20250514")
//	ag := agent.New(settings, agent.NewOneShotStrategy(), llm, cfg, logger)
//	ag.Attach(agent.NewSystemComponent(), historyComponent)
//
//	proposal, err := ag.ProposeAction(ctx)
//	if err != nil {
//	    // retry with context via ag.RetryProposeAction
//	}
//	result, err := ag.Execute(ctx, proposal)
package agent
