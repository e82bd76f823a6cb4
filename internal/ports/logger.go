package ports

import "context"

// Logger is the logging surface used across the engine.
// Implementations live in internal/adapters/logger (standard log, zap).
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a minor anomaly or a degraded condition.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs a serious anomaly together with its cause.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
