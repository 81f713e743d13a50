// Package log provides structured logging for kpiq.
//
// Entries are grouped into categories:
//   - System: process lifecycle, configuration, listeners
//   - Execution: query requests moving through the engine
//   - Pool: networked backend sessions (acquire, probe, evict)
//   - Catalog: file-based schema discovery and row cache activity
//   - Performance: timings
//
// Each category has its own level and output.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disable logging entirely
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON writes the level name rather than its ordinal.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryExecution   Category = "execution"
	CategoryPool        Category = "pool"
	CategoryCatalog     Category = "catalog"
	CategoryPerformance Category = "performance"
)

var allCategories = []Category{
	CategorySystem,
	CategoryExecution,
	CategoryPool,
	CategoryCatalog,
	CategoryPerformance,
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps "text" / "json" onto a Format.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Entry represents a single log entry.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ErrorStr  string                 `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Logger writes categorised, levelled entries.
type Logger struct {
	mu sync.RWMutex

	levels  map[Category]Level
	outputs map[Category]io.Writer

	format        Format
	includeCaller bool

	// Serialises writes so entries from concurrent requests do not interleave.
	writeMu sync.Mutex

	entriesLogged int64
}

// Config holds logger configuration.
type Config struct {
	DefaultLevel   Level
	CategoryLevels map[Category]Level

	Output io.Writer // os.Stderr if nil
	Format Format

	IncludeCaller bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := &Logger{
		levels:        make(map[Category]Level),
		outputs:       make(map[Category]io.Writer),
		format:        cfg.Format,
		includeCaller: cfg.IncludeCaller,
	}

	for _, cat := range allCategories {
		l.levels[cat] = cfg.DefaultLevel
		l.outputs[cat] = cfg.Output
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}

	return l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Config{DefaultLevel: LevelOff, Output: io.Discard})
}

// SetLevel sets the log level for a category.
func (l *Logger) SetLevel(cat Category, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[cat] = level
}

// SetOutput sets the output writer for a category.
func (l *Logger) SetOutput(cat Category, w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs[cat] = w
}

// Enabled reports whether level would be written for cat.
func (l *Logger) Enabled(cat Category, level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.levels[cat] && l.levels[cat] != LevelOff
}

// Logged returns how many entries have been written.
func (l *Logger) Logged() int64 {
	return atomic.LoadInt64(&l.entriesLogged)
}

// System returns a category logger for system events.
func (l *Logger) System() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategorySystem}
}

// Execution returns a category logger for query execution.
func (l *Logger) Execution() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryExecution}
}

// Pool returns a category logger for connection pool events.
func (l *Logger) Pool() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryPool}
}

// Catalog returns a category logger for schema catalog events.
func (l *Logger) Catalog() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryCatalog}
}

// Performance returns a category logger for timings.
func (l *Logger) Performance() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryPerformance}
}

func (l *Logger) log(ctx context.Context, level Level, cat Category, msg string, err error, fields ...interface{}) {
	l.mu.RLock()
	catLevel := l.levels[cat]
	output := l.outputs[cat]
	format := l.format
	includeCaller := l.includeCaller
	l.mu.RUnlock()

	if catLevel == LevelOff || level < catLevel {
		return
	}

	entry := &Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
	}
	if err != nil {
		entry.ErrorStr = err.Error()
	}
	if ctx != nil {
		entry.RequestID = RequestIDFromContext(ctx)
	}

	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	if includeCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line []byte
	if format == FormatJSON {
		data, _ := json.Marshal(entry)
		line = append(data, '\n')
	} else {
		line = []byte(formatText(entry))
	}

	l.writeMu.Lock()
	output.Write(line)
	l.writeMu.Unlock()
	atomic.AddInt64(&l.entriesLogged, 1)
}

// formatText formats an entry as human-readable text. Fields are sorted so
// lines are stable across runs.
func formatText(entry *Entry) string {
	var buf strings.Builder

	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteString(" [")
	buf.WriteString(string(entry.Category))
	buf.WriteString("] ")

	if entry.Caller != "" {
		buf.WriteString(entry.Caller)
		buf.WriteString(" ")
	}

	buf.WriteString(entry.Message)

	if entry.RequestID != "" {
		buf.WriteString(" request_id=")
		buf.WriteString(entry.RequestID)
	}

	if entry.ErrorStr != "" {
		buf.WriteString(" error=\"")
		buf.WriteString(entry.ErrorStr)
		buf.WriteString("\"")
	}

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
		}
	}

	buf.WriteString("\n")
	return buf.String()
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
	ctx      context.Context
}

// Ctx returns a copy of the logger that tags entries with the request ID in ctx.
func (cl *CategoryLogger) Ctx(ctx context.Context) *CategoryLogger {
	return &CategoryLogger{logger: cl.logger, category: cl.category, ctx: ctx}
}

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.logger.log(cl.ctx, LevelDebug, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.logger.log(cl.ctx, LevelInfo, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.logger.log(cl.ctx, LevelWarn, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.logger.log(cl.ctx, LevelError, cl.category, msg, err, fields...)
}

// WithFields returns a FieldLogger with preset fields.
func (cl *CategoryLogger) WithFields(fields ...interface{}) *FieldLogger {
	return &FieldLogger{
		categoryLogger: cl,
		fields:         fields,
	}
}

// FieldLogger is a category logger with preset fields.
type FieldLogger struct {
	categoryLogger *CategoryLogger
	fields         []interface{}
}

func (fl *FieldLogger) with(extra []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fl.fields)+len(extra))
	out = append(out, fl.fields...)
	return append(out, extra...)
}

func (fl *FieldLogger) Debug(msg string, extraFields ...interface{}) {
	cl := fl.categoryLogger
	cl.logger.log(cl.ctx, LevelDebug, cl.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Info(msg string, extraFields ...interface{}) {
	cl := fl.categoryLogger
	cl.logger.log(cl.ctx, LevelInfo, cl.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Warn(msg string, extraFields ...interface{}) {
	cl := fl.categoryLogger
	cl.logger.log(cl.ctx, LevelWarn, cl.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Error(msg string, err error, extraFields ...interface{}) {
	cl := fl.categoryLogger
	cl.logger.log(cl.ctx, LevelError, cl.category, msg, err, fl.with(extraFields)...)
}

type contextKey int

const (
	contextKeyRequestID contextKey = iota
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
