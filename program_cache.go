package insideout

import "sync"

// ProgramCache stores compiled check programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapProgramCache is a minimal mutex-guarded ProgramCache for callers that
// reuse a Checker across many expressions.
type MapProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMapProgramCache constructs an empty cache.
func NewMapProgramCache() *MapProgramCache {
	return &MapProgramCache{programs: map[string]any{}}
}

// Get returns the cached program for key.
func (c *MapProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	value, ok := c.programs[key]
	c.mu.RUnlock()
	return value, ok
}

// Set stores value under key.
func (c *MapProgramCache) Set(key string, value any) {
	c.mu.Lock()
	c.programs[key] = value
	c.mu.Unlock()
}
