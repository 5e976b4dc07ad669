package deal

// Logger is the interface for structured logging across the engine.
// Implementations bind key-value fields; callers pass fields as
// alternating key/value pairs.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}
