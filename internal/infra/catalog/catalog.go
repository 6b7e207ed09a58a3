package catalog

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"tooldeck/internal/domain"
)

// Store holds the deduplicated set of tool specs, indexed by name. Load is
// expected at startup (or on an explicit reload); reads are lock-cheap and
// work before any tool is constructed.
type Store struct {
	mu    sync.RWMutex
	specs map[string]domain.ToolSpec
}

func NewStore() *Store {
	return &Store{specs: make(map[string]domain.ToolSpec)}
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	Type        string
	Category    string
	NamePattern string // path.Match glob, e.g. "github_*"
}

// Load adds specs to the store. Under LoadMerge a name collision with a
// different type is a configuration error; a same-name/same-type
// redefinition is idempotent with last write winning for description and
// settings. LoadReplace swaps the whole catalog atomically.
func (s *Store) Load(specs []domain.ToolSpec, mode domain.LoadMode) error {
	next := make(map[string]domain.ToolSpec, len(specs))

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == domain.LoadMerge {
		for name, spec := range s.specs {
			next[name] = spec
		}
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return domain.E(domain.ErrValidation, "catalog.load", "tool spec with empty name", nil)
		}
		if spec.Type == "" {
			return domain.E(domain.ErrValidation, "catalog.load",
				fmt.Sprintf("tool %q has no type", spec.Name), nil)
		}
		if existing, ok := next[spec.Name]; ok && existing.Type != spec.Type {
			return domain.E(domain.ErrDuplicateName, "catalog.load",
				fmt.Sprintf("tool %q already registered with type %q, redefined with type %q",
					spec.Name, existing.Type, spec.Type), nil).
				WithHint("remove the duplicate definition from one of the catalog sources")
		}
		next[spec.Name] = spec
	}

	s.specs = next
	return nil
}

// Lookup returns the spec for name, if present.
func (s *Store) Lookup(name string) (domain.ToolSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[name]
	return spec, ok
}

// List returns matching specs sorted by name. Pure and side-effect free.
func (s *Store) List(filter Filter) []domain.ToolSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ToolSpec, 0, len(s.specs))
	for _, spec := range s.specs {
		if filter.Type != "" && spec.Type != filter.Type {
			continue
		}
		if filter.Category != "" && spec.Category != filter.Category {
			continue
		}
		if filter.NamePattern != "" {
			if ok, err := path.Match(filter.NamePattern, spec.Name); err != nil || !ok {
				continue
			}
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all tool names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.specs)
}
