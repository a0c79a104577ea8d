package agent

import (
	"context"
	"fmt"
	"time"
)

// SystemComponent supplies the baseline directives every agent carries and
// the finish command that ends a session. Attach it first so task-specific
// components can shadow it.
type SystemComponent struct {
	// Clock is injectable for testing; defaults to time.Now.
	Clock func() time.Time
}

// NewSystemComponent creates a SystemComponent.
func NewSystemComponent() *SystemComponent {
	return &SystemComponent{Clock: time.Now}
}

func (s *SystemComponent) Resources() []string {
	return []string{
		"You are a language model, trained on a large dataset with a knowledge cutoff.",
	}
}

func (s *SystemComponent) Constraints() []string {
	return []string{
		"Exclusively use the commands listed below.",
		"You can only act proactively, and are unable to start background jobs or set up webhooks for yourself.",
		fmt.Sprintf("The current time and date is %s.", s.Clock().Format("Mon Jan 2 15:04:05 2006")),
	}
}

func (s *SystemComponent) BestPractices() []string {
	return []string{
		"Continuously review and analyze your actions to ensure you are performing to the best of your abilities.",
		"Every command has a cost, so be smart and efficient.",
		"Do not procrastinate: if the task is done, finish.",
	}
}

func (s *SystemComponent) Commands() []*Command {
	return []*Command{
		{
			Name:        "finish",
			Description: "Use this to shut down once you have completed your task, or when there are insurmountable problems that make it impossible for you to finish your task.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "A summary to the user of how the goals were accomplished",
					},
				},
				"required": []string{"reason"},
			},
			Method: func(_ context.Context, args map[string]any) (any, error) {
				reason, _ := args["reason"].(string)
				return nil, &TerminatedError{Reason: reason}
			},
		},
	}
}
