package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/calref/forgeloop/agent"
	"github.com/calref/forgeloop/multillm"
)

// TokenCounter measures replay text against the component's budget.
// *multillm.Completer satisfies it.
type TokenCounter interface {
	CountTokens(text string) int
}

// Component feeds the episodic record back into the agent loop: it replays
// past episodes as conversation messages, records every parsed proposal, and
// closes the pending episode with each result.
type Component struct {
	store   *Store
	counter TokenCounter
	budget  int
	log     *zap.Logger

	cycle int
}

// NewComponent creates a history Component. budget bounds the replay in
// tokens; zero or negative disables the bound. A nil logger disables logging.
func NewComponent(store *Store, counter TokenCounter, budget int, log *zap.Logger) *Component {
	if log == nil {
		log = zap.NewNop()
	}
	return &Component{
		store:   store,
		counter: counter,
		budget:  budget,
		log:     log,
	}
}

// Messages replays past episodes newest-last, dropping the oldest episodes
// first when the token budget would be exceeded.
func (c *Component) Messages() []multillm.Message {
	episodes, err := c.store.Episodes()
	if err != nil {
		c.log.Warn("could not load episode history", zap.Error(err))
		return nil
	}

	// Walk newest to oldest so the most recent episodes survive the cut.
	var (
		kept  [][]multillm.Message
		spent int
	)
	for i := len(episodes) - 1; i >= 0; i-- {
		msgs := episodeMessages(episodes[i])
		if c.budget > 0 && c.counter != nil {
			cost := 0
			for _, m := range msgs {
				cost += c.counter.CountTokens(m.Content)
			}
			if spent+cost > c.budget {
				break
			}
			spent += cost
		}
		kept = append(kept, msgs)
	}

	var out []multillm.Message
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i]...)
	}
	return out
}

func episodeMessages(e *Episode) []multillm.Message {
	action := e.Proposal.Thoughts
	if e.Proposal.UseTool != nil {
		action = e.Proposal.UseTool.String()
		if e.Proposal.Thoughts != "" {
			action = fmt.Sprintf("%s\n%s", e.Proposal.Thoughts, action)
		}
	}
	msgs := []multillm.Message{multillm.AssistantMessage(action)}
	if e.Result != nil {
		msgs = append(msgs, multillm.SystemMessage(e.Result.String()))
	}
	return msgs
}

// AfterParse opens a new episode for the proposal.
func (c *Component) AfterParse(_ context.Context, proposal *agent.ActionProposal) error {
	c.cycle++
	if _, err := c.store.RegisterProposal(c.cycle, proposal); err != nil {
		return fmt.Errorf("register proposal: %w", err)
	}
	return nil
}

// AfterExecute closes the pending episode with the cycle's result. Results
// arriving without a pending episode (a declined proposal recorded twice,
// a fresh store) are logged and dropped rather than failing the cycle.
func (c *Component) AfterExecute(_ context.Context, result *agent.ActionResult) error {
	if err := c.store.RegisterResult(result); err != nil {
		c.log.Warn("could not record result", zap.Error(err))
	}
	return nil
}
