package insideout

import "sync"

// container is the untyped view the registry needs over a Property: remove
// entries on destruction, relocate them on a duplication remap, and expose
// keys for leak accounting.
type container interface {
	remove(Identity)
	relocate(old, next Identity)
	identities() []Identity
}

// Property is one declared piece of per-instance state: a typed mapping
// from instance identity to value. Whoever holds the pointer holds the
// access; there is no other way at the data.
type Property[V any] struct {
	mu     sync.RWMutex
	values map[Identity]V
}

// NewProperty declares a property against class. Call it exactly once per
// property, at class-definition time. Declaring against a nil class or a
// class that already has registered instances is a definition-time caller
// bug and panics.
func NewProperty[V any](class *Class) *Property[V] {
	if class == nil {
		panic("insideout: property requires a declaring class")
	}
	p := &Property[V]{values: map[Identity]V{}}
	class.attach(p)
	return p
}

// Set stores value for obj. The instance must already be registered; state
// written before registration would be invisible to cleanup, so this is
// treated as misuse and panics.
func (p *Property[V]) Set(obj Instance, value V) {
	id := ID(obj)
	if id == 0 {
		panic(ErrNotRegistered)
	}
	p.mu.Lock()
	p.values[id] = value
	p.mu.Unlock()
}

// Get returns obj's value, or the zero value when absent.
func (p *Property[V]) Get(obj Instance) V {
	value, _ := p.Lookup(obj)
	return value
}

// Lookup returns obj's value and whether one is set.
func (p *Property[V]) Lookup(obj Instance) (V, bool) {
	return p.LookupAt(ID(obj))
}

// LookupAt reads by raw identity. Useful for asserting that a stale
// identity no longer resolves.
func (p *Property[V]) LookupAt(id Identity) (V, bool) {
	p.mu.RLock()
	value, ok := p.values[id]
	p.mu.RUnlock()
	return value, ok
}

// Delete removes obj's entry. No-op when absent or unregistered.
func (p *Property[V]) Delete(obj Instance) {
	p.remove(ID(obj))
}

// Len reports how many instances currently have a value set.
func (p *Property[V]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

func (p *Property[V]) remove(id Identity) {
	if id == 0 {
		return
	}
	p.mu.Lock()
	delete(p.values, id)
	p.mu.Unlock()
}

func (p *Property[V]) relocate(old, next Identity) {
	p.mu.Lock()
	if value, ok := p.values[old]; ok {
		p.values[next] = value
		delete(p.values, old)
	}
	p.mu.Unlock()
}

func (p *Property[V]) identities() []Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]Identity, 0, len(p.values))
	for id := range p.values {
		ids = append(ids, id)
	}
	return ids
}
