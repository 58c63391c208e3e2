package logger

import "context"

type ctxKey struct{}

// Component-specific loggers

// Migration returns a logger for applying changes
func (l *Logger) Migration() *Logger { return l.Component("migration") }

// Store returns a logger for data access
func (l *Logger) Store() *Logger { return l.Component("store") }

// CLI returns a logger for command line operations
func (l *Logger) CLI() *Logger { return l.Component("cli") }

// NewContext returns a copy of ctx carrying l
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or a no-op logger
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Nop()
}
