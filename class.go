package insideout

import (
	"fmt"
	"sync"
)

// Demolisher is the optional per-class pre-destruction callback. It runs
// synchronously with the instance, before any of the class's container
// entries are removed. Failures are contained and logged; they never stop
// state cleanup.
type Demolisher func(Instance) error

// Class groups the state containers declared by one declaring class of
// caller code. Create one per conceptual class, at definition time, and
// declare every property against it before registering the first instance.
type Class struct {
	name       string
	demolisher Demolisher

	mu         sync.Mutex
	containers []container
	sealed     bool
}

// ClassOption configures a class at definition time.
type ClassOption func(*Class)

// WithDemolisher sets the class's pre-destruction callback. At most one per
// class; later options overwrite earlier ones.
func WithDemolisher(fn Demolisher) ClassOption {
	return func(c *Class) {
		c.demolisher = fn
	}
}

// classIndex is explicit process-wide state: empty at startup, never torn
// down. It exists so Remap can flatten containers across every declaring
// class.
var classIndex = struct {
	mu     sync.RWMutex
	byName map[string]*Class
}{byName: map[string]*Class{}}

// NewClass registers a declaring class under a unique name. Misuse (empty
// or duplicate name) is a definition-time caller bug and panics.
func NewClass(name string, opts ...ClassOption) *Class {
	if name == "" {
		panic("insideout: class name must not be empty")
	}
	c := &Class{name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	classIndex.mu.Lock()
	defer classIndex.mu.Unlock()
	if _, exists := classIndex.byName[name]; exists {
		panic(fmt.Sprintf("insideout: class %q already declared", name))
	}
	classIndex.byName[name] = c
	return c
}

// Name returns the declaring class's unique name.
func (c *Class) Name() string {
	return c.name
}

// PropertyCount reports how many properties the class has declared.
func (c *Class) PropertyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.containers)
}

// attach records a freshly declared container. Declaration is only legal
// before the first instance registers.
func (c *Class) attach(cont container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		panic(fmt.Sprintf("insideout: class %q already has instances; declare properties at definition time", c.name))
	}
	c.containers = append(c.containers, cont)
}

// seal closes the class against further declarations. Called on first
// registration.
func (c *Class) seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// snapshotContainers returns the class's containers for iteration outside
// the class lock.
func (c *Class) snapshotContainers() []container {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]container, len(c.containers))
	copy(out, c.containers)
	return out
}

// allContainers flattens every declared container across every class.
// Order is irrelevant to callers.
func allContainers() []container {
	classIndex.mu.RLock()
	defer classIndex.mu.RUnlock()
	var out []container
	for _, c := range classIndex.byName {
		out = append(out, c.snapshotContainers()...)
	}
	return out
}

// resetClassIndex clears process-wide class state. Test support only.
func resetClassIndex() {
	classIndex.mu.Lock()
	classIndex.byName = map[string]*Class{}
	classIndex.mu.Unlock()
}
