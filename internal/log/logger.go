package log

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

// Logger provides structured logging backed by zap.
// Arguments follow the key/value convention: Info("msg", "station", 3, "attempt", 2).
type Logger struct {
	zap    *zap.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case FormatText:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	output := config.Output
	if output == nil {
		output = DefaultConfig().Output
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), config.Level.ToZapLevel())

	var opts []zap.Option
	if config.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	z := zap.New(core, opts...)
	if config.ServiceName != "" {
		z = z.With(zap.String("service", config.ServiceName))
	}
	if config.ServiceVersion != "" {
		z = z.With(zap.String("version", config.ServiceVersion))
	}

	return &Logger{zap: z, config: config}
}

// FromZap wraps an existing zap logger. Tests use it with zaptest/observer.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z, config: DefaultConfig()}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Development creates a logger with development configuration
func Development() *Logger {
	return New(DevelopmentConfig())
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), config: DefaultConfig()}
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		zap:    l.zap.With(fields(args)...),
		config: l.config,
	}
}

// WithGroup returns a new Logger whose subsequent attributes are nested under name
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		zap:    l.zap.With(zap.Namespace(name)),
		config: l.config,
	}
}

// WithError adds error details to the logger
// If the error is a DramascopeError, it adds error_code and suggestions
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	var de *errors.DramascopeError
	if stderrors.As(err, &de) {
		args := []any{
			"error", de.Message,
			"error_code", string(de.Code),
		}

		if len(de.Suggestions) > 0 {
			args = append(args, "suggestions", de.Suggestions)
		}

		if de.Cause != nil {
			args = append(args, "cause", de.Cause.Error())
		}

		return l.With(args...)
	}

	return l.With("error", err.Error())
}

// WithContext returns a new Logger carrying the trace and span IDs found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.zap.Debug(msg, fields(args)...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.zap.Info(msg, fields(args)...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.zap.Warn(msg, fields(args)...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.zap.Error(msg, fields(args)...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// LogError logs an error with its code, suggestions and cause when available
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	l.WithError(err).Error("operation failed")
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(level Level) bool {
	return l.zap.Core().Enabled(level.ToZapLevel())
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// fields converts key/value pairs into zap fields. A zap.Field passed
// directly is kept as is; a dangling key is logged under "!BADKEY".
func fields(args []any) []zap.Field {
	out := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case zap.Field:
			out = append(out, v)
		case string:
			if i+1 >= len(args) {
				out = append(out, zap.String("!BADKEY", v))
				continue
			}
			out = append(out, zap.Any(v, args[i+1]))
			i++
		default:
			out = append(out, zap.Any(fmt.Sprintf("!BADKEY%d", i), v))
		}
	}
	return out
}
