package model

import "time"

// EvaluatorLogEvent describes an evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Target   string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// EventLogEvent describes one event dispatch for logging.
type EventLogEvent struct {
	Kind       EventKind
	TypeName   string
	InstanceID string
	Property   string
	Deferred   bool
}

// EventLogger records event dispatches.
type EventLogger interface {
	LogEvent(EventLogEvent)
}

// EventLoggerFunc adapts a function to EventLogger.
type EventLoggerFunc func(EventLogEvent)

// LogEvent implements EventLogger.
func (f EventLoggerFunc) LogEvent(event EventLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEventLogger struct{}

func (noopEventLogger) LogEvent(EventLogEvent) {}

// WithEvaluatorLogger attaches an evaluator logger to the registry.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *registryConfig) {
		if logger == nil {
			cfg.evalLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evalLogger = logger
	}
}

// WithEventLogger attaches an event dispatch logger to the registry.
func WithEventLogger(logger EventLogger) Option {
	return func(cfg *registryConfig) {
		if logger == nil {
			cfg.eventLogger = noopEventLogger{}
			return
		}
		cfg.eventLogger = logger
	}
}
