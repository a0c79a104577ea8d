package history

import (
	"context"
	"strings"
	"testing"

	"github.com/calref/forgeloop/agent"
)

// lenCounter charges one token per character, making budgets easy to reason
// about in tests.
type lenCounter struct{}

func (lenCounter) CountTokens(text string) int { return len(text) }

func TestComponentRecordsCycle(t *testing.T) {
	s := setupTestStore(t)
	c := NewComponent(s, lenCounter{}, 0, nil)
	ctx := context.Background()

	if err := c.AfterParse(ctx, proposal("list_files")); err != nil {
		t.Fatalf("after parse: %v", err)
	}
	if err := c.AfterExecute(ctx, agent.SuccessResult("a.txt b.txt")); err != nil {
		t.Fatalf("after execute: %v", err)
	}

	episodes, err := s.Episodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 1 || episodes[0].Cycle != 1 {
		t.Fatalf("unexpected episodes: %v", episodes)
	}
	if episodes[0].Result == nil {
		t.Error("result should close the episode")
	}
}

func TestComponentReplaysEpisodesInOrder(t *testing.T) {
	s := setupTestStore(t)
	c := NewComponent(s, lenCounter{}, 0, nil)
	ctx := context.Background()

	c.AfterParse(ctx, proposal("first"))
	c.AfterExecute(ctx, agent.SuccessResult("one"))
	c.AfterParse(ctx, proposal("second"))
	c.AfterExecute(ctx, agent.ErrorResult("two failed"))

	msgs := c.Messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "first") {
		t.Errorf("oldest episode should come first: %q", msgs[0].Content)
	}
	if msgs[1].Content != "one" {
		t.Errorf("result follows its proposal: %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[3].Content, "Action failed") {
		t.Errorf("error results replay their rendered form: %q", msgs[3].Content)
	}
}

func TestComponentBudgetDropsOldestFirst(t *testing.T) {
	s := setupTestStore(t)
	// Budget sized for roughly one episode of this shape.
	c := NewComponent(s, lenCounter{}, 80, nil)
	ctx := context.Background()

	c.AfterParse(ctx, proposal("ancient"))
	c.AfterExecute(ctx, agent.SuccessResult("old output"))
	c.AfterParse(ctx, proposal("recent"))
	c.AfterExecute(ctx, agent.SuccessResult("new output"))

	msgs := c.Messages()
	if len(msgs) == 0 {
		t.Fatal("expected at least the newest episode")
	}
	joined := ""
	for _, m := range msgs {
		joined += m.Content + "\n"
	}
	if !strings.Contains(joined, "recent") {
		t.Error("newest episode must survive the budget cut")
	}
	if strings.Contains(joined, "ancient") {
		t.Error("oldest episode should be dropped when over budget")
	}
}

func TestComponentOrphanResultDoesNotFailCycle(t *testing.T) {
	s := setupTestStore(t)
	c := NewComponent(s, lenCounter{}, 0, nil)

	if err := c.AfterExecute(context.Background(), agent.SuccessResult("stray")); err != nil {
		t.Errorf("orphan result should be dropped, not failed: %v", err)
	}
}
