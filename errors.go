package insideout

import (
	"errors"
	"fmt"
)

// ErrNotRegistered reports a write against an instance the registry has
// never seen (or has already destroyed). Writing state before registration
// is a caller bug, so it surfaces as a panic carrying this value.
var ErrNotRegistered = errors.New("insideout: instance not registered")

// LifecycleError captures registry metadata alongside the originating
// error, typically a failing demolisher.
type LifecycleError struct {
	Op       string
	Class    string
	Identity Identity
	Err      error
}

func (e *LifecycleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("insideout: %s class=%s id=%d: %v", e.Op, e.Class, e.Identity, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapLifecycleError(op, class string, id Identity, err error) error {
	if err == nil {
		return nil
	}

	var lcErr *LifecycleError
	if errors.As(err, &lcErr) {
		if lcErr.Op == "" {
			lcErr.Op = op
		}
		if lcErr.Class == "" {
			lcErr.Class = class
		}
		if lcErr.Identity == 0 {
			lcErr.Identity = id
		}
		return lcErr
	}

	return &LifecycleError{Op: op, Class: class, Identity: id, Err: err}
}
