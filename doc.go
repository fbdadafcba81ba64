// Package insideout implements inside-out object state: per-instance values
// live in typed containers outside the instance, indexed by an opaque
// identity, instead of in fields on the instance itself.
//
// Callers declare a Class once, declare one Property per piece of state
// against it, and register each new instance with a Registry. From then on
// the instance reference is only a lookup key; the containers own the data.
//
// Responsibilities:
//   - Property[V] maps Identity -> V for a single declared property and is
//     private to whatever scope holds the pointer.
//   - Class groups the properties declared by one body of caller code and
//     carries the optional pre-destruction demolisher.
//   - Registry issues identities, tracks live instances without owning
//     them, reclaims all declared state on destruction, and reissues
//     identities when an embedding runtime duplicates its world (Remap).
//
// Data flow:
//
//	NewClass -> NewProperty -> Register -> Property.Set/Lookup -> Destroy
//
// Destruction is deterministic: pair every Register with a Destroy. A GC
// backstop reclaims container entries for instances that were never
// destroyed explicitly, so forgotten teardown degrades to a logged
// reclamation instead of a leak.
//
// The registry holds only weak references. It is never the reason an
// instance stays alive.
package insideout
