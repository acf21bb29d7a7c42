// Package logger defines the logging interface the payment components
// write to. The zero-dependency NoopLogger is the default everywhere; a
// zap-backed implementation is provided for production use.
package logger

// Logger is the minimal structured logging surface used by the gate,
// the validator pipeline and the backends.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
