package insideout

import "sync/atomic"

// Identity is the opaque per-instance key used across all state containers.
// Identities are issued at registration time, are unique among live
// registered instances, and are reissued wholesale by Registry.Remap.
// The zero value means "not registered".
type Identity uint64

// lastIdentity is process-wide so identities never collide across
// registries, which keeps the cross-class container flatten in Remap safe.
var lastIdentity atomic.Uint64

func issueIdentity() Identity {
	return Identity(lastIdentity.Add(1))
}

// Anchor carries an instance's current identity. Embed it (by value) in any
// struct whose per-instance state should live inside out:
//
//	type Person struct {
//		insideout.Anchor
//	}
//
// An anchored value must not be copied after registration; the registry
// tracks the original allocation.
type Anchor struct {
	id Identity
}

func (a *Anchor) anchor() *Anchor { return a }

// Instance is satisfied by any struct embedding Anchor. The interface
// method is unexported on purpose: embedding is the only way in, which
// keeps the identity field hidden from callers.
type Instance interface {
	anchor() *Anchor
}

// ID returns the identity issued to obj at registration, or zero when obj
// was never registered (or has been destroyed).
func ID(obj Instance) Identity {
	if obj == nil {
		return 0
	}
	return obj.anchor().id
}
