package insideout

// LogEvent describes a lifecycle occurrence worth recording: a contained
// demolisher failure, a GC-driven reclamation, a remap.
type LogEvent struct {
	Op       string
	Class    string
	Identity Identity
	Err      error
}

// Logger records registry lifecycle events.
type Logger interface {
	LogLifecycle(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogLifecycle implements Logger.
func (f LoggerFunc) LogLifecycle(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogLifecycle(LogEvent) {}

// WithLogger attaches a lifecycle logger to the registry.
func WithLogger(logger Logger) RegistryOption {
	return func(cfg *registryConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}
