package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calref/forgeloop/multillm"
)

// ChatCompleter is the language model surface the agent consumes: one
// blocking completion call and token counting for the budget check.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, prompt multillm.ChatPrompt) (*multillm.Response, error)
	CountTokens(text string) int
}

// Settings identify the agent and hold its persisted directive state.
type Settings struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Task        string     `yaml:"task"`
	Directives  Directives `yaml:"directives"`
}

// Config holds the static loop configuration.
type Config struct {
	// DisabledCommands removes every command exposing one of these names
	// or aliases from both the proposal-time and execution-time sets.
	DisabledCommands []string

	// SendTokenLimit is the per-message token budget. A command result
	// longer than a third of it is replaced with the standard oversized
	// output error.
	SendTokenLimit int
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		SendTokenLimit: 120000,
	}
}

// Agent runs the proposal/execution cycle. One logical thread of control:
// a cycle runs to completion, suspending only on the model call and the
// invoked command, before the next begins.
type Agent struct {
	id         string
	settings   *Settings
	strategy   PromptStrategy
	llm        ChatCompleter
	config     Config
	log        *zap.Logger
	emitter    *EventEmitter
	components []any

	disabled   map[string]bool
	cycleCount int

	// commands is the filtered set assembled by the current cycle.
	commands []*Command
}

// New creates an Agent. A nil logger disables logging.
func New(settings *Settings, strategy PromptStrategy, llm ChatCompleter, config Config, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	if config.SendTokenLimit <= 0 {
		config.SendTokenLimit = DefaultConfig().SendTokenLimit
	}

	disabled := make(map[string]bool, len(config.DisabledCommands))
	for _, name := range config.DisabledCommands {
		disabled[name] = true
	}

	agentID := uuid.New().String()
	return &Agent{
		id:       agentID,
		settings: settings,
		strategy: strategy,
		llm:      llm,
		config:   config,
		log:      log.With(zap.String("agent_id", agentID)),
		emitter:  NewEventEmitter(agentID, 256),
		disabled: disabled,
	}
}

// ID returns the agent instance identifier.
func (a *Agent) ID() string { return a.id }

// CycleCount returns the number of completed proposal cycles.
func (a *Agent) CycleCount() int { return a.cycleCount }

// Events returns the monitoring event channel.
func (a *Agent) Events() <-chan Event { return a.emitter.Events() }

// Close releases the agent's event stream.
func (a *Agent) Close() { a.emitter.Close() }

// Attach registers components at the end of the pipeline. Registration
// order is the pipeline order, and later components' commands shadow
// earlier ones with the same name.
func (a *Agent) Attach(components ...any) {
	a.components = append(a.components, components...)
}

// Commands returns the command set assembled by the most recent cycle.
func (a *Agent) Commands() []*Command { return a.commands }

// ProposeAction runs one proposal cycle and returns the model's decision.
// A *ResponseError is recoverable: retry through RetryProposeAction with
// the failure so the model sees what went wrong.
func (a *Agent) ProposeAction(ctx context.Context) (*ActionProposal, error) {
	return a.proposeAction(ctx, nil)
}

// RetryProposeAction reruns the proposal cycle with the prior failure
// appended to the prompt as a system message. Callers bound their own
// retry budget; the agent does not.
func (a *Agent) RetryProposeAction(ctx context.Context, prior error) (*ActionProposal, error) {
	return a.proposeAction(ctx, prior)
}

func (a *Agent) proposeAction(ctx context.Context, prior error) (*ActionProposal, error) {
	// Merge pipeline directives onto a copy; the persisted state must not
	// observe a partial merge.
	directives := a.settings.Directives.Copy()
	for _, c := range a.components {
		p, ok := c.(DirectiveProvider)
		if !ok {
			continue
		}
		directives.Resources = append(directives.Resources, p.Resources()...)
		directives.Constraints = append(directives.Constraints, p.Constraints()...)
		directives.BestPractices = append(directives.BestPractices, p.BestPractices()...)
	}

	a.commands = a.collectCommands()
	if obscured := FindObscuredCommands(a.commands); len(obscured) > 0 {
		names := make([]string, len(obscured))
		for i, c := range obscured {
			names[i] = c.Name
		}
		a.log.Warn("commands are obscured by later registrations", zap.Strings("commands", names))
		a.emitter.Emit(EventWarning, map[string]any{"obscured_commands": names})
	}

	var messages []multillm.Message
	for _, c := range a.components {
		if p, ok := c.(MessageProvider); ok {
			messages = append(messages, p.Messages()...)
		}
	}

	prompt := a.strategy.BuildPrompt(PromptInput{
		Name:        a.settings.Name,
		Description: a.settings.Description,
		Task:        a.settings.Task,
		Directives:  directives,
		Commands:    a.commands,
		Messages:    messages,
	})
	if prior != nil {
		prompt.Messages = append(prompt.Messages, multillm.SystemMessage(fmt.Sprintf("Error: %v", prior)))
	}

	a.log.Debug("proposal prompt", zap.String("prompt", prompt.Raw()))

	resp, err := a.llm.CreateChatCompletion(ctx, prompt)
	if err != nil {
		return nil, err
	}

	proposal, err := a.strategy.ParseResponse(resp)
	if err != nil {
		var re *ResponseError
		if !errors.As(err, &re) {
			err = NewResponseError(err.Error(), resp.Content)
		}
		return nil, err
	}

	a.runAfterParse(ctx, proposal)

	a.cycleCount++
	a.emitter.Emit(EventProposal, map[string]any{
		"cycle":    a.cycleCount,
		"thoughts": proposal.Thoughts,
		"command":  proposalCommandName(proposal),
	})

	return proposal, nil
}

// Execute resolves and invokes the proposed command, classifying the
// outcome into an ActionResult. Every failure except the terminate signal
// becomes the cycle's Error result; a TerminatedError propagates
// unchanged to abort the session.
func (a *Agent) Execute(ctx context.Context, proposal *ActionProposal) (*ActionResult, error) {
	// Providers may be stateful; rebuild and refilter the live set.
	a.commands = a.collectCommands()

	var result *ActionResult
	if proposal.UseTool == nil {
		result = ErrorResult("proposal does not name a command")
	} else {
		output, err := a.executeTool(ctx, proposal.UseTool)
		switch {
		case err == nil:
			result = SuccessResult(output)
		case IsTerminated(err):
			return nil, err
		default:
			result = ErrorResultFromErr(err)
			a.log.Warn("command raised an error",
				zap.String("command", proposal.UseTool.Name),
				zap.Error(err))
			a.emitter.Emit(EventCommandError, map[string]any{
				"command": proposal.UseTool.Name,
				"error":   err.Error(),
			})
		}

		if a.llm.CountTokens(result.String()) > a.config.SendTokenLimit/3 {
			result = ErrorResult(fmt.Sprintf(
				"Command %s returned too much output. Do not execute this command again with the same arguments.",
				proposal.UseTool.Name))
			a.emitter.Emit(EventResultTruncated, map[string]any{
				"command": proposal.UseTool.Name,
			})
		}
	}

	a.runAfterExecute(ctx, result)

	return result, nil
}

// DoNotExecute records an operator veto of the proposal without resolving
// or invoking anything. The feedback is carried verbatim in the result,
// and after-execute hooks still run.
func (a *Agent) DoNotExecute(ctx context.Context, proposal *ActionProposal, feedback string) (*ActionResult, error) {
	result := InterruptedResult(feedback)

	a.emitter.Emit(EventInterrupted, map[string]any{
		"command":  proposalCommandName(proposal),
		"feedback": feedback,
	})

	a.runAfterExecute(ctx, result)

	return result, nil
}

// executeTool resolves and invokes one command, normalizing failures:
// recognized AgentErrors and the terminate signal pass through, anything
// else is wrapped into a CommandExecutionError.
func (a *Agent) executeTool(ctx context.Context, call *multillm.AssistantFunctionCall) (any, error) {
	command, err := ResolveCommand(call.Name, a.commands)
	if err != nil {
		return nil, err
	}

	a.emitter.Emit(EventCommandStart, map[string]any{
		"command":   command.Name,
		"requested": call.Name,
	})

	output, err := command.Method(ctx, call.Arguments)
	if err != nil {
		if IsTerminated(err) || IsAgentError(err) {
			return nil, err
		}
		return nil, NewCommandExecutionError(err)
	}

	a.emitter.Emit(EventCommandEnd, map[string]any{"command": command.Name})
	return output, nil
}

// collectCommands polls every command provider in registration order and
// drops commands exposing a disabled name or alias.
func (a *Agent) collectCommands() []*Command {
	var commands []*Command
	for _, c := range a.components {
		if p, ok := c.(CommandProvider); ok {
			commands = append(commands, p.Commands()...)
		}
	}
	return a.removeDisabled(commands)
}

func (a *Agent) removeDisabled(commands []*Command) []*Command {
	if len(a.disabled) == 0 {
		return commands
	}
	filtered := commands[:0:0]
	for _, c := range commands {
		blocked := false
		for _, name := range c.Names() {
			if a.disabled[name] {
				blocked = true
				break
			}
		}
		if !blocked {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func (a *Agent) runAfterParse(ctx context.Context, proposal *ActionProposal) {
	for _, c := range a.components {
		if h, ok := c.(AfterParse); ok {
			if err := h.AfterParse(ctx, proposal); err != nil {
				a.log.Warn("after-parse hook failed", zap.Error(err))
			}
		}
	}
}

func (a *Agent) runAfterExecute(ctx context.Context, result *ActionResult) {
	for _, c := range a.components {
		if h, ok := c.(AfterExecute); ok {
			if err := h.AfterExecute(ctx, result); err != nil {
				a.log.Warn("after-execute hook failed", zap.Error(err))
			}
		}
	}
}

func proposalCommandName(p *ActionProposal) string {
	if p == nil || p.UseTool == nil {
		return ""
	}
	return p.UseTool.Name
}
