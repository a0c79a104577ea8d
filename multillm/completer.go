package multillm

import (
	"context"
)

// Completer binds a Client to a fixed provider/model pair and a token
// counter, presenting the narrow chat-completion surface the agent core
// consumes.
type Completer struct {
	client   *Client
	provider string
	model    string
	counter  *TokenCounter
	policy   RetryPolicy
}

// NewCompleter creates a Completer for the given provider and model using
// the module default client.
func NewCompleter(provider, model string) *Completer {
	return &Completer{
		client:   GetDefaultClient(),
		provider: provider,
		model:    model,
		counter:  NewTokenCounter(model),
		policy:   DefaultRetryPolicy(),
	}
}

// NewCompleterWithClient creates a Completer bound to a specific client.
func NewCompleterWithClient(client *Client, provider, model string) *Completer {
	return &Completer{
		client:   client,
		provider: provider,
		model:    model,
		counter:  NewTokenCounter(model),
		policy:   DefaultRetryPolicy(),
	}
}

// SetRetryPolicy replaces the retry policy used for completions.
func (c *Completer) SetRetryPolicy(policy RetryPolicy) {
	c.policy = policy
}

// Model returns the model identifier completions are sent to.
func (c *Completer) Model() string {
	return c.model
}

// CreateChatCompletion sends the prompt to the configured provider/model,
// retrying transient failures per the retry policy.
func (c *Completer) CreateChatCompletion(ctx context.Context, prompt ChatPrompt) (*Response, error) {
	req := Request{
		Model:    c.model,
		Provider: c.provider,
		Prompt:   prompt,
	}
	return Retry(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.client.Complete(ctx, req)
	})
}

// CountTokens returns the token length of text for the configured model.
func (c *Completer) CountTokens(text string) int {
	return c.counter.Count(text)
}
