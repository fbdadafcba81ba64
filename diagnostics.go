package insideout

// Stats is a point-in-time diagnostic snapshot. Read-only test support; not
// part of the stable contract.
type Stats struct {
	Live       int
	Leaked     int
	Reclaimed  uint64
	Generation string
	Classes    map[string]int
}

// Live reports how many instances are currently registered.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reclaimed reports how many instances the GC backstop has cleaned up in
// place of an explicit Destroy.
func (r *Registry) Reclaimed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reclaimed
}

// Generation returns the ID stamped at construction and replaced on every
// remap.
func (r *Registry) Generation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation.String()
}

// Leaked counts container entries whose identity is not registered in r.
// Leak accounting is relative to one registry; a process running several
// registries over the same classes should not read much into it.
func (r *Registry) Leaked() int {
	seen := map[Identity]struct{}{}
	for _, c := range allContainers() {
		for _, id := range c.identities() {
			seen[id] = struct{}{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	leaked := 0
	for id := range seen {
		if _, ok := r.entries[id]; !ok {
			leaked++
		}
	}
	return leaked
}

// Stats assembles the full diagnostic snapshot, including per-class
// declared-property counts.
func (r *Registry) Stats() Stats {
	classes := map[string]int{}
	classIndex.mu.RLock()
	for name, class := range classIndex.byName {
		classes[name] = class.PropertyCount()
	}
	classIndex.mu.RUnlock()

	return Stats{
		Live:       r.Live(),
		Leaked:     r.Leaked(),
		Reclaimed:  r.Reclaimed(),
		Generation: r.Generation(),
		Classes:    classes,
	}
}
