package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps debug, info, warn and error to a LogLevel. Unknown
// values fall back to LevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
	FormatConsole
)

// ParseLogFormat maps json, text and console to a LogFormat, defaulting to JSON.
func ParseLogFormat(s string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText
	case "console":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// StructuredLogger wraps slog with a fixed field set and domain helpers.
// Prescription plaintext and key material never go through it.
type StructuredLogger struct {
	logger    *slog.Logger
	level     LogLevel
	fields    map[string]any
	component string
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer
	Component string
	Version   string
	Fields    map[string]any
}

// NewStructuredLogger creates a new structured logger with the given configuration
func NewStructuredLogger(config LoggerConfig) *StructuredLogger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	fields := make(map[string]any, len(config.Fields)+3)
	for k, v := range config.Fields {
		fields[k] = v
	}
	if config.Component != "" {
		fields["component"] = config.Component
	}
	fields["service"] = "rxseal"
	if config.Version != "" {
		fields["version"] = config.Version
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.Level == LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	case FormatConsole:
		handler = NewConsoleHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &StructuredLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		fields:    fields,
		component: config.Component,
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *StructuredLogger {
	return NewStructuredLogger(LoggerConfig{Level: LevelError, Output: io.Discard})
}

// WithFields returns a new logger with additional fields
func (l *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StructuredLogger{
		logger:    l.logger,
		level:     l.level,
		fields:    merged,
		component: l.component,
	}
}

type requestIDKey struct{}

// ContextWithRequestID tags ctx with a request id picked up by WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithContext returns a new logger carrying the request id from ctx.
func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	if id := RequestIDFrom(ctx); id != "" {
		return l.WithFields(map[string]any{"request_id": id})
	}
	return l
}

func (l *StructuredLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

func (l *StructuredLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

func (l *StructuredLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

func (l *StructuredLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}

	logger := l.logger
	for k, v := range l.fields {
		logger = logger.With(k, v)
	}

	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			logger = logger.With("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line))
		}
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	logger.Log(ctx, level.slogLevel(), msg)
}

// LogKeyExchange records a key exchange step for a session.
func (l *StructuredLogger) LogKeyExchange(ctx context.Context, step, sessionID, group string, err error) {
	fields := map[string]any{
		"operation":  "key_exchange",
		"step":       step,
		"session_id": sessionID,
		"group":      group,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.WithContext(ctx).WithFields(fields).Warn("Key exchange step failed")
		return
	}
	l.WithContext(ctx).WithFields(fields).Info("Key exchange step completed")
}

// LogPrescriptionEvent records a lifecycle operation on an appointment.
func (l *StructuredLogger) LogPrescriptionEvent(ctx context.Context, operation, appointmentID, actorID, role string, duration time.Duration, err error) {
	fields := map[string]any{
		"operation":      operation,
		"appointment_id": appointmentID,
		"actor_id":       actorID,
		"role":           role,
		"duration_ms":    duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_type"] = fmt.Sprintf("%T", err)
		l.WithContext(ctx).WithFields(fields).Warn("Prescription operation failed")
		return
	}
	l.WithContext(ctx).WithFields(fields).Info("Prescription operation completed")
}

// LogSecurityEvent logs a security-related event
func (l *StructuredLogger) LogSecurityEvent(ctx context.Context, event string, severity string, metadata map[string]any) {
	fields := map[string]any{
		"event":    event,
		"severity": severity,
	}
	for k, v := range metadata {
		fields[k] = v
	}

	logger := l.WithContext(ctx).WithFields(fields)
	switch severity {
	case "critical", "high":
		logger.Error("Security event detected")
	case "medium":
		logger.Warn("Security event detected")
	default:
		logger.Info("Security event detected")
	}
}

// ConsoleHandler provides colorized console output
type ConsoleHandler struct {
	handler slog.Handler
	output  io.Writer
}

func NewConsoleHandler(output io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		handler: slog.NewTextHandler(output, opts),
		output:  output,
	}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ConsoleHandler) Handle(ctx context.Context, record slog.Record) error {
	var levelStr string
	switch record.Level {
	case slog.LevelDebug:
		levelStr = "\033[36mDEBUG\033[0m"
	case slog.LevelInfo:
		levelStr = "\033[32mINFO\033[0m"
	case slog.LevelWarn:
		levelStr = "\033[33mWARN\033[0m"
	case slog.LevelError:
		levelStr = "\033[31mERROR\033[0m"
	default:
		levelStr = record.Level.String()
	}

	fmt.Fprintf(h.output, "%s [%s] %s", record.Time.Format("15:04:05.000"), levelStr, record.Message)
	record.Attrs(func(a slog.Attr) bool {
		if a.Key != slog.TimeKey && a.Key != slog.LevelKey {
			fmt.Fprintf(h.output, " %s=%s", a.Key, a.Value)
		}
		return true
	})
	fmt.Fprintln(h.output)
	return nil
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithAttrs(attrs),
		output:  h.output,
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithGroup(name),
		output:  h.output,
	}
}

// NewProductionLogger reads RXSEAL_LOG_LEVEL and RXSEAL_LOG_FORMAT.
func NewProductionLogger(component string) *StructuredLogger {
	return NewStructuredLogger(LoggerConfig{
		Level:     ParseLogLevel(os.Getenv("RXSEAL_LOG_LEVEL")),
		Format:    ParseLogFormat(os.Getenv("RXSEAL_LOG_FORMAT")),
		Component: component,
		Fields: map[string]any{
			"pid": os.Getpid(),
		},
	})
}
