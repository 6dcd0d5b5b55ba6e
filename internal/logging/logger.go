// Package logging provides categorized file-based logging for affinityops.
// Logs are written to .affinityops/logs/ with a separate file per category.
// When debug mode is off, every call is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config, credential checks
	CategorySession Category = "session" // Conversation lifecycle
	CategoryAPI     Category = "api"     // Affinity HTTP traffic
	CategoryLLM     Category = "llm"     // Model provider calls
	CategoryTools   Category = "tools"   // Tool dispatch
	CategoryAgent   Category = "agent"   // Agent loop turns
	CategoryResolve Category = "resolve" // Entity resolution
	CategoryCoerce  Category = "coerce"  // Field value coercion
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	stateMu   sync.RWMutex
	debugMode bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. With debug=false nothing is ever written.
func Initialize(workspace string, debug bool) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	stateMu.Lock()
	debugMode = debug
	if debug {
		logLevel = LevelDebug
	}
	logsDir = filepath.Join(workspace, ".affinityops", "logs")
	dir := logsDir
	stateMu.Unlock()

	if !debug {
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== affinityops logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Logs directory: %s", dir)

	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return debugMode
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when debug mode is disabled.
func Get(category Category) *Logger {
	if !IsDebugMode() {
		return &Logger{category: category}
	}

	stateMu.RLock()
	dir := logsDir
	stateMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// CloseAll closes all open log files. Call on shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Convenience helpers, one pair per category.

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func LLM(format string, args ...interface{}) { Get(CategoryLLM).Info(format, args...) }

func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }

func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

func Agent(format string, args ...interface{}) { Get(CategoryAgent).Info(format, args...) }

func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debug(format, args...) }

func Resolve(format string, args ...interface{}) { Get(CategoryResolve).Info(format, args...) }

func ResolveDebug(format string, args ...interface{}) { Get(CategoryResolve).Debug(format, args...) }

func Coerce(format string, args ...interface{}) { Get(CategoryCoerce).Info(format, args...) }

func CoerceDebug(format string, args ...interface{}) { Get(CategoryCoerce).Debug(format, args...) }
