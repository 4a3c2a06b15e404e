package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// OptionSpec describes one account display option: what it means, what
// it starts as, and how to reject bad values.
type OptionSpec struct {
	Desc     string
	Default  any
	Validate func(v any) error // nil accepts anything
}

// OptionRegistry is the read-mostly name -> spec table for account
// display preferences. Options register once at startup; lookups and
// validation happen on every preference write.
type OptionRegistry struct {
	mu    sync.RWMutex
	specs map[string]OptionSpec
}

// NewOptionRegistry creates an empty option registry.
func NewOptionRegistry() *OptionRegistry {
	return &OptionRegistry{specs: make(map[string]OptionSpec)}
}

// Register adds an option. Duplicate names are rejected so two
// subsystems cannot silently fight over one option's meaning.
func (o *OptionRegistry) Register(name string, spec OptionSpec) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("registry: option needs a name")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, dup := o.specs[name]; dup {
		return fmt.Errorf("registry: option %q already registered", name)
	}
	o.specs[name] = spec
	return nil
}

// Get returns the spec for name.
func (o *OptionRegistry) Get(name string) (OptionSpec, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	spec, ok := o.specs[name]
	return spec, ok
}

// Default returns the default value for name.
func (o *OptionRegistry) Default(name string) (any, bool) {
	spec, ok := o.Get(name)
	if !ok {
		return nil, false
	}
	return spec.Default, true
}

// Validate checks a prospective value for name. Unknown options are an
// error; so is anything the option's validator rejects.
func (o *OptionRegistry) Validate(name string, v any) error {
	spec, ok := o.Get(name)
	if !ok {
		return fmt.Errorf("registry: unknown option %q", name)
	}
	if spec.Validate == nil {
		return nil
	}
	if err := spec.Validate(v); err != nil {
		return fmt.Errorf("registry: option %q: %w", name, err)
	}
	return nil
}

// Names lists registered options, sorted.
func (o *OptionRegistry) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.specs))
	for name := range o.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
