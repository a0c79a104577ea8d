package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calref/forgeloop/multillm"
)

// PromptInput is everything a strategy needs to build one proposal prompt.
type PromptInput struct {
	Name        string
	Description string
	Task        string
	Directives  Directives
	Commands    []*Command
	Messages    []multillm.Message
}

// PromptStrategy builds the chat prompt for a cycle and parses the
// model's reply back into a proposal.
type PromptStrategy interface {
	BuildPrompt(input PromptInput) multillm.ChatPrompt
	ParseResponse(resp *multillm.Response) (*ActionProposal, error)
}

// OneShotStrategy is the built-in single-action strategy: the full state
// goes into one system prompt and the model answers with exactly one
// command call, either through the provider's function-call surface or as
// a JSON object in the reply text.
type OneShotStrategy struct {
	// UseFunctionsAPI exposes commands as callable functions instead of
	// describing them in the system prompt.
	UseFunctionsAPI bool
}

// NewOneShotStrategy returns a OneShotStrategy with the functions API
// enabled.
func NewOneShotStrategy() *OneShotStrategy {
	return &OneShotStrategy{UseFunctionsAPI: true}
}

// oneShotReply is the JSON shape of a text-mode reply.
type oneShotReply struct {
	Thoughts string `json:"thoughts"`
	Command  *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"command"`
}

// BuildPrompt assembles the system prompt, conversation history, and
// response-format instruction into a single request.
func (s *OneShotStrategy) BuildPrompt(input PromptInput) multillm.ChatPrompt {
	var sb strings.Builder

	if input.Name != "" {
		fmt.Fprintf(&sb, "You are %s, %s\n\n", input.Name, input.Description)
	}

	fmt.Fprintf(&sb, "## Task\nYour task is:\n%s\n", input.Task)

	writeNumberedSection(&sb, "Constraints", input.Directives.Constraints)
	writeNumberedSection(&sb, "Resources", input.Directives.Resources)
	writeNumberedSection(&sb, "Best practices", input.Directives.BestPractices)

	if !s.UseFunctionsAPI {
		sb.WriteString("\n## Commands\nYou have access to the following commands:\n")
		for _, c := range input.Commands {
			fmt.Fprintf(&sb, "- %s: %s\n", c.Spec().Name, c.Description)
		}
	}

	sb.WriteString("\nRespond with a JSON object of the form " +
		`{"thoughts": "<your reasoning>", "command": {"name": "<command>", "args": {...}}}. ` +
		"Choose exactly one command per response.")

	messages := make([]multillm.Message, 0, len(input.Messages)+1)
	messages = append(messages, multillm.SystemMessage(sb.String()))
	messages = append(messages, input.Messages...)

	prompt := multillm.ChatPrompt{
		Messages: messages,
		Prefill:  `{"thoughts":`,
	}
	if s.UseFunctionsAPI {
		prompt.Functions = CommandSpecs(input.Commands)
	}
	return prompt
}

func writeNumberedSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n", title)
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
}

// ParseResponse extracts the proposal from a model reply. A function call
// takes precedence; otherwise the reply text must contain the JSON object
// described in the prompt. Anything else is a recoverable ResponseError.
func (s *OneShotStrategy) ParseResponse(resp *multillm.Response) (*ActionProposal, error) {
	if call := resp.FirstToolCall(); call != nil {
		return &ActionProposal{
			Thoughts:    strings.TrimSpace(resp.Content),
			UseTool:     call,
			RawResponse: resp.Content,
		}, nil
	}

	body := extractJSONObject(resp.Content)
	if body == "" {
		return nil, NewResponseError("reply contains no JSON object", resp.Content)
	}

	var reply oneShotReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, NewResponseError(fmt.Sprintf("invalid JSON in reply: %v", err), resp.Content)
	}
	if reply.Command == nil || reply.Command.Name == "" {
		return nil, NewResponseError("reply names no command", resp.Content)
	}

	args := reply.Command.Args
	if args == nil {
		args = map[string]any{}
	}
	return &ActionProposal{
		Thoughts: reply.Thoughts,
		UseTool: &multillm.AssistantFunctionCall{
			Name:      reply.Command.Name,
			Arguments: args,
		},
		RawResponse: resp.Content,
	}, nil
}

// extractJSONObject returns the outermost {...} span in text, or "".
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
