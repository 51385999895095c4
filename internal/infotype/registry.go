package infotype

import (
	"fmt"
	"regexp"
	"sync"
)

// Registry owns the set of known info types in declaration order.
// It is populated during startup and then frozen; after Freeze it is
// read-only and safe to share.
type Registry struct {
	mu     sync.RWMutex
	types  []*InfoType
	byName map[string]*InfoType
	frozen bool
}

// NewRegistry constructs an empty Registry instance
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*InfoType)}
}

// Register appends an info type. The registry is left unchanged when an
// error is returned.
func (r *Registry) Register(t *InfoType) error {
	if t == nil {
		return fmt.Errorf("%w: nil info type", ErrInvalidName)
	}
	if !ValidName(t.name) {
		return fmt.Errorf("%w: %q (must match [A-Za-z0-9_]+)", ErrInvalidName, t.name)
	}
	if _, err := regexp.Compile(t.pattern); err != nil {
		return &InvalidPatternError{Name: t.name, Pattern: t.pattern, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrFrozen, t.name)
	}
	if _, exists := r.byName[t.name]; exists {
		return &DuplicateNameError{Name: t.name}
	}

	r.types = append(r.types, t)
	r.byName[t.name] = t
	return nil
}

// RegisterAll registers info types in order, stopping at the first failure
func (r *Registry) RegisterAll(types []*InfoType) error {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves an info type by name
func (r *Registry) Get(name string) (*InfoType, bool) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	return t, ok
}

// InfoTypes returns the registered info types in declaration order.
// The slice is a copy; the elements are shared.
func (r *Registry) InfoTypes() []*InfoType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*InfoType, len(r.types))
	copy(result, r.types)
	return result
}

// Names returns registered names in declaration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.types))
	for i, t := range r.types {
		names[i] = t.name
	}
	return names
}

// Len returns the number of registered info types
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Generate produces a synthetic value for the named info type
func (r *Registry) Generate(name string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownInfoType, name)
	}
	return t.Generate(), nil
}

// Freeze makes the registry read-only
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// ValidName reports whether name can be used as a capture group name
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c != '_' && (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
