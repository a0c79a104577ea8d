package agent

// ResolveCommand finds the command matching name in an ordered command
// list. The scan runs from the end of the list to the start, so the most
// recently appended command claiming a name wins. Later providers are
// assumed more specific: a user-supplied command shadows a built-in with
// the same name without needing explicit priorities.
//
// Returns an UnknownCommandError when no command claims the name.
func ResolveCommand(name string, commands []*Command) (*Command, error) {
	for i := len(commands) - 1; i >= 0; i-- {
		if commands[i].HasName(name) {
			return commands[i], nil
		}
	}
	return nil, NewUnknownCommandError(name)
}

// FindObscuredCommands returns the commands that are unreachable through
// ResolveCommand: every one of their names and aliases is also claimed by
// a command appearing later in the list. Used for warning diagnostics,
// not dispatch.
//
// The list is walked in reverse with a running set of claimed names. A
// command whose full name set is already claimed is obscured; its names
// still join the running set, so an obscured command can only obscure an
// earlier one through names nothing later had claimed. Results come back
// in original list order.
func FindObscuredCommands(commands []*Command) []*Command {
	claimed := make(map[string]bool)
	var obscured []*Command

	for i := len(commands) - 1; i >= 0; i-- {
		c := commands[i]
		fullyCovered := true
		for _, n := range c.Names() {
			if !claimed[n] {
				fullyCovered = false
			}
		}
		if fullyCovered {
			obscured = append(obscured, c)
		}
		for _, n := range c.Names() {
			claimed[n] = true
		}
	}

	// Reverse walk collected them back-to-front; restore original order.
	for i, j := 0, len(obscured)-1; i < j; i, j = i+1, j-1 {
		obscured[i], obscured[j] = obscured[j], obscured[i]
	}
	return obscured
}
