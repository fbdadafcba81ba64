package insideout

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// Checker evaluates invariant expressions against a registry's diagnostic
// snapshot using github.com/expr-lang/expr. Expressions see the bindings
// `live`, `leaked`, `reclaimed`, `generation`, and `classes` (class name ->
// declared property count). Typical use is asserting health in tests or in
// an embedding runtime after a remap:
//
//	ok, err := checker.Check(reg, "leaked == 0 && live > 0")
type Checker struct {
	cache ProgramCache
}

// CheckerOption configures a checker instance.
type CheckerOption func(*Checker)

// CheckWithProgramCache wires a ProgramCache into the checker.
func CheckWithProgramCache(cache ProgramCache) CheckerOption {
	return func(c *Checker) {
		c.cache = cache
	}
}

// NewChecker constructs a Checker.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Eval runs expression against r's current stats and returns the raw result.
func (c *Checker) Eval(r *Registry, expression string) (any, error) {
	if r == nil {
		return nil, wrapLifecycleError("check", "", 0, fmt.Errorf("registry must not be nil"))
	}
	if expression == "" {
		return nil, wrapLifecycleError("check", "", 0, fmt.Errorf("expression must not be empty"))
	}

	env := statsBinding(r.Stats())
	program, err := c.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return nil, wrapLifecycleError("check", "", 0, fmt.Errorf("expr %q: %w", expression, err))
	}
	return result, nil
}

// Check runs expression and requires a boolean result.
func (c *Checker) Check(r *Registry, expression string) (bool, error) {
	result, err := c.Eval(r, expression)
	if err != nil {
		return false, err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, wrapLifecycleError("check", "", 0, fmt.Errorf("expr %q: expected boolean result, got %T", expression, result))
	}
	return ok, nil
}

func (c *Checker) loadOrCompile(expression string) (*exprvm.Program, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, wrapLifecycleError("check", "", 0, fmt.Errorf("expr %q: %w", expression, err))
	}
	if c.cache != nil {
		c.cache.Set(expression, program)
	}
	return program, nil
}

func statsBinding(stats Stats) map[string]any {
	classes := make(map[string]any, len(stats.Classes))
	for name, count := range stats.Classes {
		classes[name] = count
	}
	return map[string]any{
		"live":       stats.Live,
		"leaked":     stats.Leaked,
		"reclaimed":  stats.Reclaimed,
		"generation": stats.Generation,
		"classes":    classes,
	}
}
