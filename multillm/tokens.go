package multillm

import (
	"github.com/pkoukk/tiktoken-go"
)

// fallbackCharsPerToken is the approximation used when no BPE encoding is
// available for the model.
const fallbackCharsPerToken = 4

// TokenCounter counts tokens for a specific model using tiktoken, falling
// back to a character-length approximation when the model's encoding
// cannot be loaded (unknown model, offline environment).
type TokenCounter struct {
	model string
	enc   *tiktoken.Tiktoken
}

// NewTokenCounter creates a TokenCounter for the given model.
func NewTokenCounter(model string) *TokenCounter {
	c := &TokenCounter{model: model}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err == nil {
		c.enc = enc
	}
	return c
}

// Model returns the model this counter was built for.
func (c *TokenCounter) Model() string {
	return c.model
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return approximateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages returns the token total for a message slice, including a
// small per-message framing overhead.
func (c *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += 4 // role and separator framing
		total += c.Count(m.Content)
	}
	return total
}

func approximateTokens(text string) int {
	n := len(text) / fallbackCharsPerToken
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
