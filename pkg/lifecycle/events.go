package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Verbs emitted by the registry. Identities are plain uint64s here to avoid
// coupling hook implementations to the core package's types.
const (
	VerbRegistered = "registered"
	VerbDestroyed  = "destroyed"
	VerbReclaimed  = "reclaimed"
	VerbRemapped   = "remapped"
)

// Event describes a lifecycle occurrence that can be fanned out to hooks.
type Event struct {
	ID         uuid.UUID
	Verb       string
	Class      string
	Identity   uint64
	Generation string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Hook receives normalized lifecycle events.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy Hook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []Hook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to all hooks, returning a joined error if any
// fail. It normalizes the event and short-circuits when the verb is missing.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims whitespace, clones metadata, and ensures an event ID
// and timestamp are present.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.Class = strings.TrimSpace(event.Class)
	normalized.Generation = strings.TrimSpace(event.Generation)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = cloneMap(event.Metadata)
	if normalized.ID == uuid.Nil {
		normalized.ID = uuid.New()
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
