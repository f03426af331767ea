package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 1 // Log every error by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
)

// Error counters (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total409Errors atomic.Int64
	SkippedRules   atomic.Int64
)

func init() {
	// Get log level from environment variable (default: INFO)
	SetLevelFromEnv("LOG_LEVEL", LevelInfo)

	// ERROR_SAMPLE_RATE=1 logs all errors/warnings (default)
	// ERROR_SAMPLE_RATE=100 logs 1%
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			SetSampleRate(rate)
		}
	}

	SetOutput(os.Stdout)
}

// SetOutput replaces the JSON handler's destination
func SetOutput(w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(level))
				}
			}
			return a
		},
	}

	Logger = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(Logger)
}

// SetSampleRate logs 1 out of every rate warnings and errors
func SetSampleRate(rate int) {
	if rate < 1 {
		rate = 1
	}
	atomic.StoreInt32(&errorSampleRate, int32(rate))
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

func levelName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level >= LevelFatal:
		return "FATAL"
	default:
		return level.String()
	}
}

// SetLevelFromEnv sets the log level from an environment variable
// If the environment variable is not set or invalid, defaultLevel is used
func SetLevelFromEnv(envVarName string, defaultLevel slog.Level) {
	levelStr := os.Getenv(envVarName)
	if levelStr == "" {
		programLevel.Set(defaultLevel)
		return
	}

	level, err := ParseLevel(levelStr)
	if err != nil {
		programLevel.Set(defaultLevel)
		return
	}
	programLevel.Set(level)
}

// shouldSample returns true if we should log this message
// Uses sampling to reduce log volume (1 out of every N messages)
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// ============================================================================
// Logging Functions
// ============================================================================

// Trace logs a trace-level message (never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message WITH SAMPLING
// The counter is always incremented, but log output is sampled
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message WITH SAMPLING
// The counter is always incremented, but log output is sampled
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message and exits (never sampled)
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// ============================================================================
// HTTP and Evaluation Helpers
// ============================================================================

// ErrorHttp5xx increments the 5xx counters
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counters
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	// Track specific common 4xx codes
	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 409:
		Total409Errors.Add(1)
	}
}

// WarnSkippedRule counts a rule left out of an evaluation because its
// condition failed
func WarnSkippedRule() {
	SkippedRules.Add(1)
}
