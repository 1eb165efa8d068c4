// Package logging provides config-driven categorized logging for matchchat.
// Each category gets a named zap logger; categories can be switched off
// individually, and nothing is emitted until Initialize is called.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config loading
	CategoryConfig    Category = "config"    // Config reloads
	CategorySnapshot  Category = "snapshot"  // Backend request/response
	CategoryPoll      Category = "poll"      // Poll scheduler loops
	CategoryDirectory Category = "directory" // Channel directory merges
	CategoryStore     Category = "store"     // Message store and archive
	CategoryPresence  Category = "presence"  // Typing/online tracking
	CategoryOutbound  Category = "outbound"  // Sends and membership mutations
	CategoryAssistant Category = "assistant" // Assistant channel generation
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty = stderr
	Categories map[string]bool // missing category = enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from opts.
// Should be called once at startup; later calls replace the root.
func Initialize(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	if opts.Format == "console" || opts.Format == "text" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetBase(l, opts.Categories)
	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s", level, cfg.Encoding)
	return nil
}

// SetBase installs an already-built zap logger. Tests use it with zaptest/observer.
func SetBase(l *zap.Logger, enabled map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = l
	categories = enabled
	loggers = make(map[Category]*Logger)
}

// Base returns the root zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// IsCategoryEnabled checks if a category should be logged
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if len(categories) == 0 {
		return true
	}
	enabled, ok := categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	root := base
	if !categoryEnabledLocked(category) {
		root = zap.NewNop()
	}
	l := &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRequestID returns a request-scoped logger for correlating one backend call.
func WithRequestID(category Category, requestID string) *Logger {
	return Get(category).With("req", requestID)
}

// CloseAll flushes buffered log entries (call at shutdown)
func CloseAll() {
	mu.RLock()
	defer mu.RUnlock()
	if err := base.Sync(); err != nil && !isStdStreamSyncErr(err) {
		fmt.Fprintf(os.Stderr, "[logging] sync failed: %v\n", err)
	}
}

// Syncing stderr/stdout returns EINVAL on most platforms; that's not worth reporting.
func isStdStreamSyncErr(err error) bool {
	return strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl")
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }
func Config(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }
func ConfigWarn(format string, args ...interface{}) { Get(CategoryConfig).Warn(format, args...) }

func Snapshot(format string, args ...interface{}) { Get(CategorySnapshot).Info(format, args...) }
func SnapshotDebug(format string, args ...interface{}) { Get(CategorySnapshot).Debug(format, args...) }
func SnapshotWarn(format string, args ...interface{}) { Get(CategorySnapshot).Warn(format, args...) }

func Poll(format string, args ...interface{}) { Get(CategoryPoll).Info(format, args...) }
func PollDebug(format string, args ...interface{}) { Get(CategoryPoll).Debug(format, args...) }
func PollWarn(format string, args ...interface{}) { Get(CategoryPoll).Warn(format, args...) }

func Directory(format string, args ...interface{}) { Get(CategoryDirectory).Info(format, args...) }
func DirectoryDebug(format string, args ...interface{}) { Get(CategoryDirectory).Debug(format, args...) }

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

func PresenceDebug(format string, args ...interface{}) { Get(CategoryPresence).Debug(format, args...) }

func Outbound(format string, args ...interface{}) { Get(CategoryOutbound).Info(format, args...) }
func OutboundWarn(format string, args ...interface{}) { Get(CategoryOutbound).Warn(format, args...) }
func OutboundError(format string, args ...interface{}) { Get(CategoryOutbound).Error(format, args...) }

func Assistant(format string, args ...interface{}) { Get(CategoryAssistant).Info(format, args...) }
func AssistantDebug(format string, args ...interface{}) { Get(CategoryAssistant).Debug(format, args...) }
func AssistantError(format string, args ...interface{}) { Get(CategoryAssistant).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
