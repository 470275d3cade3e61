package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
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

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the structured log entry passed to the dashboard.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	defaultLogger *slog.Logger
	dashChannel   chan LogEntry
	isDashMode    bool
)

const dashChannelBufferSize = 2048

// initCommon initializes the logger for either dashboard or CLI mode.
// This should be called once at application startup.
func initCommon(mode string, level LogLevel, output io.Writer, channelBufferSize int) <-chan LogEntry {
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}

	var handler slog.Handler
	if mode == "dashboard" {
		isDashMode = true
		if channelBufferSize <= 0 {
			channelBufferSize = dashChannelBufferSize
		}
		dashChannel = make(chan LogEntry, channelBufferSize)
		// Fallback handler for entries emitted before the dashboard
		// starts draining the channel.
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else { // cli mode
		isDashMode = false
		handler = slog.NewTextHandler(output, opts)
	}
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	if isDashMode {
		return dashChannel
	}
	return nil
}

// InitForDashboard initializes the logging system for dashboard mode.
// It returns a channel the dashboard listens to for log entries.
func InitForDashboard(filterLevel LogLevel) <-chan LogEntry {
	return initCommon("dashboard", filterLevel, os.Stderr, dashChannelBufferSize)
}

// InitForCLI initializes the logging system for CLI mode. Logs are
// written to the provided output (usually os.Stderr).
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	initCommon("cli", filterLevel, output, 0)
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	now := time.Now()

	if isDashMode {
		if dashChannel != nil {
			entry := LogEntry{
				Timestamp: now,
				Level:     level,
				Subsystem: subsystem,
				Message:   msg,
				Err:       err,
			}
			select {
			case dashChannel <- entry:
			default:
				// Buffer full; drop rather than stall a start routine.
			}
		} else {
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] dashboard mode active but channel is nil. Log: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		}
		return
	}

	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[LOGGING_ERROR] Logger not initialized. Log: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		return
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// Output forwards a single captured line of process output, tagged with
// the owning service label. Stderr lines are logged at warn level so
// they stand out in the dashboard without being treated as failures.
func Output(service string, stderr bool, line string) {
	if stderr {
		logInternal(LevelWarn, service, nil, "%s", line)
		return
	}
	logInternal(LevelDebug, service, nil, "%s", line)
}

// CloseDashboardChannel closes the dashboard log channel. Should be
// called on application shutdown.
func CloseDashboardChannel() {
	if dashChannel != nil {
		close(dashChannel)
	}
}
