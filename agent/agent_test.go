package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/calref/forgeloop/multillm"
)

// fakeLLM is a scripted ChatCompleter that records every prompt it sees.
type fakeLLM struct {
	responses []*multillm.Response
	errs      []error
	prompts   []multillm.ChatPrompt
	calls     int
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, prompt multillm.ChatPrompt) (*multillm.Response, error) {
	f.prompts = append(f.prompts, prompt)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &multillm.Response{Content: "{}"}, nil
}

func (f *fakeLLM) CountTokens(text string) int {
	return len(text) / 4
}

func callResponse(name string, args map[string]any) *multillm.Response {
	return &multillm.Response{
		ToolCalls: []multillm.AssistantFunctionCall{{Name: name, Arguments: args}},
	}
}

// testComponent implements every pipeline interface with recording hooks.
type testComponent struct {
	resources     []string
	constraints   []string
	bestPractices []string
	commands      []*Command
	messages      []multillm.Message

	commandPolls int
	parsed       []*ActionProposal
	executed     []*ActionResult
	hookErr      error
}

func (c *testComponent) Resources() []string     { return c.resources }
func (c *testComponent) Constraints() []string   { return c.constraints }
func (c *testComponent) BestPractices() []string { return c.bestPractices }

func (c *testComponent) Commands() []*Command {
	c.commandPolls++
	return c.commands
}

func (c *testComponent) Messages() []multillm.Message { return c.messages }

func (c *testComponent) AfterParse(_ context.Context, p *ActionProposal) error {
	c.parsed = append(c.parsed, p)
	return c.hookErr
}

func (c *testComponent) AfterExecute(_ context.Context, r *ActionResult) error {
	c.executed = append(c.executed, r)
	return c.hookErr
}

func newTestAgent(llm ChatCompleter, config Config) *Agent {
	settings := &Settings{
		Name:        "TestAgent",
		Description: "an agent under test.",
		Task:        "do the thing",
		Directives:  Directives{Constraints: []string{"persisted constraint"}},
	}
	return New(settings, NewOneShotStrategy(), llm, config, nil)
}

func echoCommand(name string) *Command {
	return &Command{
		Name:        name,
		Description: "echoes its input",
		Method: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	}
}

func TestProposeActionReturnsParsedProposal(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", map[string]any{"text": "hi"}),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(&testComponent{commands: []*Command{echoCommand("echo")}})

	proposal, err := ag.ProposeAction(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.UseTool == nil || proposal.UseTool.Name != "echo" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestProposeActionMergesDirectivesWithoutMutatingState(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(&testComponent{
		commands:      []*Command{echoCommand("echo")},
		constraints:   []string{"pipeline constraint"},
		resources:     []string{"pipeline resource"},
		bestPractices: []string{"pipeline practice"},
	})

	if _, err := ag.ProposeAction(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	system := llm.prompts[0].Messages[0].Content
	for _, want := range []string{
		"persisted constraint",
		"pipeline constraint",
		"pipeline resource",
		"pipeline practice",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	// Persisted directive state must be untouched by the merge.
	if len(ag.settings.Directives.Constraints) != 1 {
		t.Errorf("persisted directives mutated: %v", ag.settings.Directives.Constraints)
	}
	if len(ag.settings.Directives.Resources) != 0 {
		t.Errorf("persisted resources mutated: %v", ag.settings.Directives.Resources)
	}
}

func TestProposeActionPipelineOrder(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(
		&testComponent{messages: []multillm.Message{multillm.UserMessage("first")}},
		&testComponent{
			commands: []*Command{echoCommand("echo")},
			messages: []multillm.Message{multillm.UserMessage("second")},
		},
	)

	if _, err := ag.ProposeAction(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := llm.prompts[0].Messages
	// System prompt first, then provider messages in registration order.
	if msgs[1].Content != "first" || msgs[2].Content != "second" {
		t.Errorf("messages out of order: %v", msgs)
	}
}

func TestProposeActionCycleCounter(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", nil),
		{Content: "not json at all"},
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(&testComponent{commands: []*Command{echoCommand("echo")}})

	ctx := context.Background()
	if _, err := ag.ProposeAction(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ag.CycleCount() != 1 {
		t.Fatalf("cycle count = %d, want 1", ag.CycleCount())
	}

	// A parse failure must not advance the counter.
	if _, err := ag.ProposeAction(ctx); err == nil {
		t.Fatal("expected parse failure")
	}
	if ag.CycleCount() != 1 {
		t.Fatalf("cycle count after failure = %d, want 1", ag.CycleCount())
	}

	if _, err := ag.ProposeAction(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ag.CycleCount() != 2 {
		t.Fatalf("cycle count = %d, want 2", ag.CycleCount())
	}
}

func TestProposeActionParseFailureIsResponseError(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		{Content: "I refuse to answer in JSON."},
	}}
	ag := newTestAgent(llm, Config{})

	_, err := ag.ProposeAction(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResponseError, got %T", err)
	}
}

func TestRetryProposeActionAppendsErrorContext(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		{Content: "garbage"},
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(&testComponent{commands: []*Command{echoCommand("echo")}})

	ctx := context.Background()
	_, err := ag.ProposeAction(ctx)
	if err == nil {
		t.Fatal("expected parse failure")
	}

	if _, err := ag.RetryProposeAction(ctx, err); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	retryPrompt := llm.prompts[1]
	last := retryPrompt.Messages[len(retryPrompt.Messages)-1]
	if last.Role != multillm.RoleSystem || !strings.Contains(last.Content, "Error:") {
		t.Errorf("expected trailing system error message, got %+v", last)
	}
}

func TestProposeActionRunsAfterParseHooks(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	hook := &testComponent{commands: []*Command{echoCommand("echo")}}
	ag.Attach(hook)

	proposal, err := ag.ProposeAction(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hook.parsed) != 1 || hook.parsed[0] != proposal {
		t.Error("after-parse hook did not receive the proposal")
	}
}

func TestDisabledCommandsFilteredFromBothPaths(t *testing.T) {
	provider := &testComponent{commands: []*Command{
		echoCommand("echo"),
		{Name: "shell", Aliases: []string{"bash"}, Method: func(context.Context, map[string]any) (any, error) {
			t.Fatal("disabled command must never run")
			return nil, nil
		}},
	}}

	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("bash", nil),
	}}
	// Disabling by primary name removes the command even when requested
	// by alias.
	ag := newTestAgent(llm, Config{DisabledCommands: []string{"shell"}})
	ag.Attach(provider)

	ctx := context.Background()
	proposal, err := ag.ProposeAction(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Proposal-time set is filtered.
	for _, c := range ag.Commands() {
		if c.Name == "shell" {
			t.Error("disabled command present in proposal-time set")
		}
	}
	if len(llm.prompts[0].Functions) != 1 || llm.prompts[0].Functions[0].Name != "echo" {
		t.Errorf("disabled command leaked into prompt functions: %v", llm.prompts[0].Functions)
	}

	// Execution-time set is produced by a separate provider poll and must
	// be filtered identically.
	result, err := ag.Execute(ctx, proposal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	var unknown *UnknownCommandError
	if !errors.As(result.Err, &unknown) {
		t.Errorf("expected UnknownCommandError, got %v", result.Err)
	}
	if provider.commandPolls < 2 {
		t.Errorf("expected separate provider polls for propose and execute, got %d", provider.commandPolls)
	}
}

func TestExecuteSuccess(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{})
	hook := &testComponent{commands: []*Command{echoCommand("echo")}}
	ag.Attach(hook)

	proposal := &ActionProposal{UseTool: &multillm.AssistantFunctionCall{
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	}}
	result, err := ag.Execute(context.Background(), proposal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSuccess || result.Outputs != "hello" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(hook.executed) != 1 || hook.executed[0] != result {
		t.Error("after-execute hook did not receive the result")
	}
}

func TestExecuteUnknownCommandBecomesErrorResult(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{})
	ag.Attach(&testComponent{commands: []*Command{echoCommand("echo")}})

	proposal := &ActionProposal{UseTool: &multillm.AssistantFunctionCall{Name: "imaginary"}}
	result, err := ag.Execute(context.Background(), proposal)
	if err != nil {
		t.Fatalf("unknown command must not propagate, got %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if !strings.Contains(result.Reason, "imaginary") {
		t.Errorf("error should identify the requested name: %q", result.Reason)
	}
}

func TestExecuteWrapsUnexpectedFailures(t *testing.T) {
	boom := errors.New("disk on fire")
	ag := newTestAgent(&fakeLLM{}, Config{})
	ag.Attach(&testComponent{commands: []*Command{{
		Name:   "burn",
		Method: func(context.Context, map[string]any) (any, error) { return nil, boom },
	}}})

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "burn"},
	})
	if err != nil {
		t.Fatalf("unexpected failure must not propagate, got %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	var wrapped *CommandExecutionError
	if !errors.As(result.Err, &wrapped) {
		t.Errorf("expected CommandExecutionError, got %T", result.Err)
	}
	if !errors.Is(result.Err, boom) {
		t.Error("wrapped error should preserve the original cause")
	}
}

func TestExecuteKeepsRecognizedAgentErrors(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{})
	ag.Attach(&testComponent{commands: []*Command{{
		Name: "strict",
		Method: func(context.Context, map[string]any) (any, error) {
			return nil, NewInvalidArgumentError("missing argument %q", "path")
		},
	}}})

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "strict"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var invalid *InvalidArgumentError
	if !errors.As(result.Err, &invalid) {
		t.Errorf("recognized failure should not be re-wrapped, got %T", result.Err)
	}
}

func TestExecuteTerminateSignalPropagates(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{})
	hook := &testComponent{commands: []*Command{{
		Name: "finish",
		Method: func(context.Context, map[string]any) (any, error) {
			return nil, &TerminatedError{Reason: "all done"}
		},
	}}}
	ag.Attach(hook)

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "finish"},
	})
	if result != nil {
		t.Errorf("expected no result on terminate, got %+v", result)
	}
	var term *TerminatedError
	if !errors.As(err, &term) {
		t.Fatalf("expected TerminatedError, got %T", err)
	}
	if term.Reason != "all done" {
		t.Errorf("terminate reason = %q, want %q", term.Reason, "all done")
	}
	if len(hook.executed) != 0 {
		t.Error("after-execute hooks must not run on the terminate path")
	}
}

func TestExecuteOversizedResultReplaced(t *testing.T) {
	big := strings.Repeat("x", 4000)
	ag := newTestAgent(&fakeLLM{}, Config{SendTokenLimit: 300}) // budget/3 = 100 tokens
	ag.Attach(&testComponent{commands: []*Command{{
		Name:   "firehose",
		Method: func(context.Context, map[string]any) (any, error) { return big, nil },
	}}})

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "firehose"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("oversized output must become an error result, got %+v", result)
	}
	if !strings.Contains(result.Reason, "too much output") ||
		!strings.Contains(result.Reason, "firehose") {
		t.Errorf("unexpected replacement reason: %q", result.Reason)
	}
}

func TestExecuteOversizedErrorResultAlsoReplaced(t *testing.T) {
	// The budget applies to the stringified result regardless of whether
	// the invocation succeeded.
	big := strings.Repeat("e", 4000)
	ag := newTestAgent(&fakeLLM{}, Config{SendTokenLimit: 300})
	ag.Attach(&testComponent{commands: []*Command{{
		Name:   "failing",
		Method: func(context.Context, map[string]any) (any, error) { return nil, fmt.Errorf("%s", big) },
	}}})

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "failing"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Reason, "too much output") {
		t.Errorf("oversized error result not replaced: %.60q", result.Reason)
	}
}

func TestExecuteSmallResultNotReplaced(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{SendTokenLimit: 300})
	ag.Attach(&testComponent{commands: []*Command{echoCommand("echo")}})

	result, err := ag.Execute(context.Background(), &ActionProposal{
		UseTool: &multillm.AssistantFunctionCall{Name: "echo", Arguments: map[string]any{"text": "ok"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("small result should pass through, got %+v", result)
	}
}

func TestDoNotExecute(t *testing.T) {
	invoked := false
	ag := newTestAgent(&fakeLLM{}, Config{})
	hook := &testComponent{commands: []*Command{{
		Name: "danger",
		Method: func(context.Context, map[string]any) (any, error) {
			invoked = true
			return nil, nil
		},
	}}}
	ag.Attach(hook)

	proposal := &ActionProposal{UseTool: &multillm.AssistantFunctionCall{Name: "danger"}}
	result, err := ag.DoNotExecute(context.Background(), proposal, "absolutely not")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoked {
		t.Error("DoNotExecute must never invoke the command")
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("expected interrupted result, got %+v", result)
	}
	if result.Feedback != "absolutely not" {
		t.Errorf("feedback = %q, want the exact supplied text", result.Feedback)
	}
	if len(hook.executed) != 1 {
		t.Error("after-execute hooks must still run on the decline path")
	}
}

func TestExecuteProposalWithoutTool(t *testing.T) {
	ag := newTestAgent(&fakeLLM{}, Config{})
	hook := &testComponent{}
	ag.Attach(hook)

	result, err := ag.Execute(context.Background(), &ActionProposal{Thoughts: "just talking"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if len(hook.executed) != 1 {
		t.Error("after-execute hooks should run even without a tool")
	}
}

func TestHookFailuresDoNotAbortCycle(t *testing.T) {
	llm := &fakeLLM{responses: []*multillm.Response{
		callResponse("echo", nil),
	}}
	ag := newTestAgent(llm, Config{})
	ag.Attach(&testComponent{
		commands: []*Command{echoCommand("echo")},
		hookErr:  errors.New("hook broke"),
	})

	ctx := context.Background()
	proposal, err := ag.ProposeAction(ctx)
	if err != nil {
		t.Fatalf("hook failure must not fail the proposal: %v", err)
	}
	if _, err := ag.Execute(ctx, proposal); err != nil {
		t.Fatalf("hook failure must not fail execution: %v", err)
	}
}

func TestProposeActionSurfacesBackendErrors(t *testing.T) {
	backendErr := errors.New("model unreachable")
	llm := &fakeLLM{errs: []error{backendErr}}
	ag := newTestAgent(llm, Config{})

	_, err := ag.ProposeAction(context.Background())
	if !errors.Is(err, backendErr) {
		t.Errorf("expected backend error to surface, got %v", err)
	}
	if ag.CycleCount() != 0 {
		t.Error("cycle counter advanced on a failed proposal")
	}
}
