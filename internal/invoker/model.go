package invoker

import (
	"slices"
	"strings"
)

// ModelResolver expands short model names to full model IDs, optionally
// prefixing local models for backends that route through a local gateway.
type ModelResolver struct {
	Aliases     map[string]string
	LocalModels []string
	LocalPrefix string
}

// Resolve expands name for the given backend. Unknown names pass through
// unchanged.
func (r ModelResolver) Resolve(name, backend string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	id := name
	if full, ok := r.Aliases[strings.ToLower(name)]; ok {
		id = full
	}
	if backend == "opencode" && r.LocalPrefix != "" && slices.Contains(r.LocalModels, id) {
		return r.LocalPrefix + id
	}
	return id
}
