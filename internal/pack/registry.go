package pack

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the packs available to a process. Reads and registration may
// happen concurrently; a pack is never observed half-registered.
type Registry struct {
	mu       sync.RWMutex
	packs    map[string]Pack
	disabled map[string]bool
}

func NewRegistry(initial ...Pack) (*Registry, error) {
	r := &Registry{
		packs:    map[string]Pack{},
		disabled: map[string]bool{},
	}
	for _, p := range initial {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Pack) error {
	desc := p.Descriptor()
	if desc.Name == "" {
		return ErrPackNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.packs[desc.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePack, desc.Name)
	}
	r.packs[desc.Name] = p
	r.disabled[desc.Name] = desc.Disabled
	return nil
}

// Resolve returns a pack by name, disabled or not.
func (r *Registry) Resolve(name string) (Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPack, name)
	}
	return p, nil
}

// ResolveEnabled is Resolve restricted to packs the planner is allowed to pick.
func (r *Registry) ResolveEnabled(name string) (Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPack, name)
	}
	if r.disabled[name] {
		return nil, fmt.Errorf("%w: %q", ErrPackDisabled, name)
	}
	return p, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packs[name]
	return ok
}

// List returns the descriptors of enabled packs sorted by name, keeping only
// packs tagged with one of categories when any are given.
func (r *Registry) List(categories ...string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.packs))
	for name, p := range r.packs {
		if r.disabled[name] {
			continue
		}
		desc := p.Descriptor().clone()
		if len(categories) > 0 && !matchesAny(desc, categories) {
			continue
		}
		desc.Disabled = false
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) SetDisabled(name string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.packs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPack, name)
	}
	r.disabled[name] = disabled
	return nil
}

// Reset drops every registered pack.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs = map[string]Pack{}
	r.disabled = map[string]bool{}
}

func matchesAny(desc Descriptor, categories []string) bool {
	for _, c := range categories {
		if c == "" || desc.HasCategory(c) {
			return true
		}
	}
	return false
}
