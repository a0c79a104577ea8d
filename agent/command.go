package agent

import (
	"context"

	"github.com/calref/forgeloop/multillm"
)

// CommandFunc is the invocation target of a Command. It receives the
// arguments chosen by the model and returns an opaque output value.
type CommandFunc func(ctx context.Context, args map[string]any) (any, error)

// Command is a named, invokable capability exposed to the model.
// Commands are supplied fresh each cycle by CommandProviders; the order of
// the assembled list is significant because resolution is
// last-registered-wins (see ResolveCommand).
type Command struct {
	// Name is the primary name the model calls the command by.
	Name string

	// Aliases are alternate names that also resolve to this command.
	// Uniqueness across the command list is not enforced.
	Aliases []string

	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any

	// Method is invoked with the proposal's arguments.
	Method CommandFunc
}

// Names returns the primary name followed by all aliases.
func (c *Command) Names() []string {
	names := make([]string, 0, 1+len(c.Aliases))
	names = append(names, c.Name)
	names = append(names, c.Aliases...)
	return names
}

// HasName reports whether name matches the command's name or any alias.
func (c *Command) HasName(name string) bool {
	if c.Name == name {
		return true
	}
	for _, alias := range c.Aliases {
		if alias == name {
			return true
		}
	}
	return false
}

// Spec returns the function spec sent to the model for this command.
func (c *Command) Spec() multillm.FunctionSpec {
	params := c.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return multillm.FunctionSpec{
		Name:        c.Name,
		Description: c.Description,
		Parameters:  params,
	}
}

// CommandSpecs converts a command list into the function specs for a
// chat prompt.
func CommandSpecs(commands []*Command) []multillm.FunctionSpec {
	specs := make([]multillm.FunctionSpec, len(commands))
	for i, c := range commands {
		specs[i] = c.Spec()
	}
	return specs
}
