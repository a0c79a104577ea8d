package agent

// Directives are the standing instructions merged into every proposal
// prompt: what the agent has access to, what it must not do, and how it
// should work.
type Directives struct {
	Resources     []string `yaml:"resources" json:"resources"`
	Constraints   []string `yaml:"constraints" json:"constraints"`
	BestPractices []string `yaml:"best_practices" json:"best_practices"`
}

// Copy returns a deep copy. The per-cycle pipeline results are appended to
// a copy so the persisted directive state is never mutated mid-merge.
func (d Directives) Copy() Directives {
	c := Directives{
		Resources:     make([]string, len(d.Resources)),
		Constraints:   make([]string, len(d.Constraints)),
		BestPractices: make([]string, len(d.BestPractices)),
	}
	copy(c.Resources, d.Resources)
	copy(c.Constraints, d.Constraints)
	copy(c.BestPractices, d.BestPractices)
	return c
}

// Empty reports whether no directives are present.
func (d Directives) Empty() bool {
	return len(d.Resources) == 0 && len(d.Constraints) == 0 && len(d.BestPractices) == 0
}
