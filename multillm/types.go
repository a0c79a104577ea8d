// Package multillm provides a provider-agnostic chat completion client
// wrapping gollm, plus the token counting used to bound tool output.
package multillm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user Message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage creates a tool result Message.
func ToolResultMessage(content string) Message {
	return Message{Role: RoleTool, Content: content}
}

// FunctionSpec describes a callable function exposed to the model.
// Parameters is a JSON Schema object.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AssistantFunctionCall is a model-initiated function invocation.
type AssistantFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// String renders the call the way it is shown to the model in history
// replays: name(key=value, ...) with keys in stable order.
func (c AssistantFunctionCall) String() string {
	keys := make([]string, 0, len(c.Arguments))
	for k := range c.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		val, err := json.Marshal(c.Arguments[k])
		if err != nil {
			val = []byte(fmt.Sprintf("%v", c.Arguments[k]))
		}
		fmt.Fprintf(&sb, "%s=%s", k, val)
	}
	sb.WriteByte(')')
	return sb.String()
}

// ChatPrompt is a fully assembled request to the chat model: conversation
// messages, the functions the model may call, and an optional assistant
// prefill used to steer structured output.
type ChatPrompt struct {
	Messages  []Message      `json:"messages"`
	Functions []FunctionSpec `json:"functions,omitempty"`
	Prefill   string         `json:"prefill,omitempty"`
}

// Raw renders the prompt for debug logging.
func (p ChatPrompt) Raw() string {
	var sb strings.Builder
	for _, m := range p.Messages {
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", m.Role, m.Content)
	}
	if len(p.Functions) > 0 {
		names := make([]string, len(p.Functions))
		for i, f := range p.Functions {
			names[i] = f.Name
		}
		fmt.Fprintf(&sb, "--- functions: %s ---\n", strings.Join(names, ", "))
	}
	return sb.String()
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Request is the input type for Client.Complete.
type Request struct {
	Model       string     `json:"model"`
	Provider    string     `json:"provider,omitempty"`
	Prompt      ChatPrompt `json:"prompt"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   *int       `json:"max_tokens,omitempty"`
}

// Response is the output of Client.Complete.
type Response struct {
	ID        string                  `json:"id"`
	Model     string                  `json:"model"`
	Provider  string                  `json:"provider"`
	Content   string                  `json:"content"`
	ToolCalls []AssistantFunctionCall `json:"tool_calls,omitempty"`
	Usage     Usage                   `json:"usage"`
}

// FirstToolCall returns the first function call in the response, or nil.
func (r *Response) FirstToolCall() *AssistantFunctionCall {
	if len(r.ToolCalls) == 0 {
		return nil
	}
	return &r.ToolCalls[0]
}
