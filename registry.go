package insideout

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/goliatone/go-insideout/pkg/lifecycle"
)

// entry is the registry's non-owning view of a live instance: enough to
// enumerate it for a remap and to reclaim its state, never enough to keep
// it alive.
type entry struct {
	class   *Class
	ref     weak.Pointer[Anchor]
	cleanup runtime.Cleanup
}

// Registry tracks live registered instances by identity. The process-wide
// Default registry starts empty and is never torn down; independent
// registries exist for tests and embedding runtimes that manage their own
// world.
type Registry struct {
	logger  Logger
	emitter *lifecycle.Emitter

	mu         sync.Mutex
	entries    map[Identity]entry
	generation uuid.UUID
	reclaimed  uint64
}

// RegistryOption configures a registry at construction time.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	logger  Logger
	hooks   lifecycle.Hooks
	channel string
}

// WithLifecycleHooks attaches lifecycle hooks to the registry. Nil entries
// are dropped.
func WithLifecycleHooks(hooks ...lifecycle.Hook) RegistryOption {
	return func(cfg *registryConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.hooks = append(cfg.hooks, hook)
			}
		}
	}
}

// WithLifecycleChannel overrides the channel stamped on emitted events.
func WithLifecycleChannel(channel string) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.channel = channel
	}
}

// New constructs an empty registry.
func New(opts ...RegistryOption) *Registry {
	cfg := registryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	logger := cfg.logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		logger:     logger,
		emitter:    lifecycle.NewEmitter(cfg.hooks, lifecycle.Config{Enabled: len(cfg.hooks) > 0, Channel: cfg.channel}),
		entries:    map[Identity]entry{},
		generation: uuid.New(),
	}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register issues an identity to obj, records a non-owning association in r,
// and returns obj unmodified. Call it once per instance during
// construction, before any state is written. Re-registering the same
// instance refreshes the association harmlessly.
//
// Registration also arms a GC backstop: if the caller never pairs the
// registration with Destroy, the runtime reclaims the instance's container
// entries once the instance becomes unreachable. The backstop cannot run
// the class demolisher (the instance is already gone), so deterministic
// Destroy remains the contract for resource-owning classes.
func Register[T Instance](r *Registry, class *Class, obj T) T {
	if r == nil {
		r = Default()
	}
	r.register(class, obj)
	return obj
}

func (r *Registry) register(class *Class, obj Instance) {
	if class == nil {
		panic("insideout: registration requires a declaring class")
	}
	if obj == nil {
		panic("insideout: cannot register a nil instance")
	}
	class.seal()
	a := obj.anchor()

	r.mu.Lock()
	id := a.id
	if prev, ok := r.entries[id]; ok {
		prev.cleanup.Stop()
	} else if id == 0 {
		id = issueIdentity()
		a.id = id
	}
	e := entry{class: class, ref: weak.Make(a)}
	e.cleanup = runtime.AddCleanup(a, func(stale Identity) { r.reclaim(class, stale) }, id)
	r.entries[id] = e
	gen := r.generation
	r.mu.Unlock()

	r.emit(lifecycle.Event{
		Verb:       lifecycle.VerbRegistered,
		Class:      class.Name(),
		Identity:   uint64(id),
		Generation: gen.String(),
	})
}

// Destroy releases obj deterministically: it runs the class demolisher with
// the instance, then unconditionally removes the identity's entry from
// every container the class declared, then drops the registry entry. A
// failing or panicking demolisher is contained and logged; cleanup always
// completes. Destroying an unregistered or already-destroyed instance is a
// no-op.
func (r *Registry) Destroy(obj Instance) {
	if obj == nil {
		return
	}
	a := obj.anchor()
	id := a.id
	if id == 0 {
		return
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	gen := r.generation
	r.mu.Unlock()
	if !ok {
		return
	}

	e.cleanup.Stop()
	r.demolish(e.class, obj, id)
	for _, c := range e.class.snapshotContainers() {
		c.remove(id)
	}
	a.id = 0

	r.emit(lifecycle.Event{
		Verb:       lifecycle.VerbDestroyed,
		Class:      e.class.Name(),
		Identity:   uint64(id),
		Generation: gen.String(),
	})
}

// demolish invokes the optional pre-destruction callback, containing any
// error or panic so teardown never aborts.
func (r *Registry) demolish(class *Class, obj Instance, id Identity) {
	fn := class.demolisher
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err := wrapLifecycleError("demolish", class.Name(), id, fmt.Errorf("panic: %v", rec))
			r.logger.LogLifecycle(LogEvent{Op: "demolish", Class: class.Name(), Identity: id, Err: err})
		}
	}()
	if err := fn(obj); err != nil {
		err = wrapLifecycleError("demolish", class.Name(), id, err)
		r.logger.LogLifecycle(LogEvent{Op: "demolish", Class: class.Name(), Identity: id, Err: err})
	}
}

// reclaim is the GC backstop: the runtime calls it once an instance that
// was never destroyed explicitly becomes unreachable. It must not touch the
// instance, only its identity.
func (r *Registry) reclaim(class *Class, id Identity) {
	r.mu.Lock()
	_, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.reclaimed++
	}
	gen := r.generation
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, c := range class.snapshotContainers() {
		c.remove(id)
	}
	r.logger.LogLifecycle(LogEvent{Op: "reclaim", Class: class.Name(), Identity: id})
	r.emit(lifecycle.Event{
		Verb:       lifecycle.VerbReclaimed,
		Class:      class.Name(),
		Identity:   uint64(id),
		Generation: gen.String(),
	})
}

// Remap reissues every live identity and relocates all container entries
// accordingly. Embedding runtimes call it exactly once per duplication
// event, in the new context, before any user code runs there; the
// single-threaded-at-start condition is the caller's guarantee. Callers
// must not layer their own relocation over it.
//
// Afterwards the registry and every container reference only the new
// identities; values are unchanged, old identities resolve to nothing, and
// the registry carries a fresh generation ID.
func (r *Registry) Remap() {
	containers := allContainers()

	r.mu.Lock()
	moved := 0
	next := make(map[Identity]entry, len(r.entries))
	for old, e := range r.entries {
		e.cleanup.Stop()
		a := e.ref.Value()
		if a == nil {
			// Collected but not yet reclaimed: drop its state here instead.
			for _, c := range e.class.snapshotContainers() {
				c.remove(old)
			}
			r.reclaimed++
			continue
		}
		id := issueIdentity()
		for _, c := range containers {
			c.relocate(old, id)
		}
		a.id = id
		class := e.class
		e.ref = weak.Make(a)
		e.cleanup = runtime.AddCleanup(a, func(stale Identity) { r.reclaim(class, stale) }, id)
		next[id] = e
		moved++
	}
	r.entries = next
	r.generation = uuid.New()
	gen := r.generation
	r.mu.Unlock()

	r.logger.LogLifecycle(LogEvent{Op: "remap"})
	r.emit(lifecycle.Event{
		Verb:       lifecycle.VerbRemapped,
		Generation: gen.String(),
		Metadata:   map[string]any{"instances": moved},
	})
}

func (r *Registry) emit(event lifecycle.Event) {
	if !r.emitter.Enabled() {
		return
	}
	if err := r.emitter.Emit(context.Background(), event); err != nil {
		r.logger.LogLifecycle(LogEvent{Op: "emit", Err: err})
	}
}
