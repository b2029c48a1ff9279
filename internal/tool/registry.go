package tool

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
)

// Registry maps tool names to their metadata. It is populated once during
// startup by the catalog registration routine and read-only afterwards;
// the mutex only matters for tests that register concurrently.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Metadata
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Metadata),
		logger: logger,
	}
}

// Register binds a name to its metadata. Duplicate names are not an
// error: the first registration wins and the duplicate is logged, so a
// stray double-registration cannot silently swap a handler.
func (r *Registry) Register(meta Metadata) {
	if meta.Name == "" || meta.Handler == nil {
		r.logger.Warn("ignoring invalid tool registration", "tool", meta.Name)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; exists {
		r.logger.Warn("tool already registered, keeping first binding", "tool", meta.Name)
		return
	}
	r.tools[meta.Name] = meta
}

// Lookup returns the metadata for a tool name.
func (r *Registry) Lookup(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.tools[name]
	return meta, ok
}

// List returns discovery info for every registered tool, sorted by name.
// An empty category means no filter.
func (r *Registry) List(category Category) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, meta := range r.tools {
		if category != "" && meta.Category != category {
			continue
		}
		infos = append(infos, Info{
			Name:        meta.Name,
			Category:    meta.Category,
			Description: meta.Description,
		})
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}

// Schemas returns the full descriptor of every registered tool, sorted
// by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for _, meta := range r.tools {
		schemas = append(schemas, meta.Schema)
	}
	slices.SortFunc(schemas, func(a, b Schema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schemas
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
