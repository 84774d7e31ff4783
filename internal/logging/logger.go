// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is a single log line kept for the companion window's log view.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Logger wraps zerolog with file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry)
}

// Config holds logger configuration
type Config struct {
	LogDir     string    // Directory for log files; empty disables the file sink
	Level      LogLevel  // Minimum log level (default: info)
	MaxHistory int       // Max entries kept in memory (default: 500)
	Console    bool      // Also log to the console
	Out        io.Writer // Console destination (default: os.Stderr)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".neuroduck", "logs"),
		Level:      LevelInfo,
		MaxHistory: 500,
		Console:    true,
	}
}

// ParseLevel maps a config string onto a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a new Logger with file and console output
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}

	logger := &Logger{
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	// History sees every line, including those from Component() loggers.
	writers := []io.Writer{historyWriter{logger}}
	var (
		file    *os.File
		logPath string
	)

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logPath = filepath.Join(cfg.LogDir, fmt.Sprintf("neuroduck_%s.log", time.Now().Format("2006-01-02")))

		var err error
		file, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	level := cfg.Level
	if level == "" {
		level = LevelInfo
	}

	logger.zlog = zerolog.New(io.MultiWriter(writers...)).Level(level.zerolog()).With().
		Timestamp().
		Str("app", "neuroduck").
		Logger()
	logger.file = file
	logger.logPath = logPath

	logger.Debug("logging", "Logger initialized", map[string]interface{}{
		"logFile": logPath,
		"level":   string(level),
	})

	return logger, nil
}

// SetOnLog sets a callback for real-time log streaming.
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}

	if l.onLog != nil {
		go l.onLog(entry)
	}
}

// GetHistory returns up to limit of the most recent entries, oldest first.
func (l *Logger) GetHistory(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}

	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.Debug("logging", "Logger shutting down", nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// formatData renders data as sorted key=value pairs.
func formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, ", ")
}

func (l *Logger) emit(event *zerolog.Event, component, msg string, err error, data map[string]interface{}) {
	event = event.Str("component", component)
	if err != nil {
		event = event.Err(err)
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// historyWriter turns each JSON log line into a LogEntry. zerolog has
// already applied the level filter when Write is called.
type historyWriter struct {
	l *Logger
}

var historySkip = []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "component", "app"}

func (w historyWriter) Write(p []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now().Format("15:04:05.000")}
	entry.Level, _ = fields[zerolog.LevelFieldName].(string)
	entry.Component, _ = fields["component"].(string)
	entry.Message, _ = fields[zerolog.MessageFieldName].(string)
	for _, k := range historySkip {
		delete(fields, k)
	}
	entry.Data = formatData(fields)

	w.l.addToHistory(entry)
	return len(p), nil
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, data map[string]interface{}) {
	l.emit(l.zlog.Debug(), component, msg, nil, data)
}

// Info logs an info message
func (l *Logger) Info(component, msg string, data map[string]interface{}) {
	l.emit(l.zlog.Info(), component, msg, nil, data)
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, data map[string]interface{}) {
	l.emit(l.zlog.Warn(), component, msg, nil, data)
}

// Error logs an error message
func (l *Logger) Error(component, msg string, err error, data map[string]interface{}) {
	l.emit(l.zlog.Error(), component, msg, err, data)
}

// Component returns a zerolog.Logger with the component field set, for
// packages that log through zerolog directly.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
