package obs

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rustkas/beamline-worker/pkg/core"
)

// Log levels emitted by the structured logger.
const (
	LevelError = "ERROR"
	LevelWarn  = "WARN"
	LevelInfo  = "INFO"
	LevelDebug = "DEBUG"
)

// timestampLayout renders ISO-8601 UTC with six-digit fractional seconds and
// a literal Z suffix.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Logger writes single-line JSON log records to stdout (ERROR also to
// stderr). Each record carries the non-empty correlation IDs at the top level
// and a nested context object that is passed through the redactor before
// serialization; the context always includes worker_id.
type Logger struct {
	workerID string

	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// NewLogger builds a logger bound to the process streams.
func NewLogger(workerID string) *Logger {
	return &Logger{
		workerID: workerID,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
}

// NewLoggerWithWriters builds a logger with explicit streams, used by tests.
func NewLoggerWithWriters(workerID string, out, errOut io.Writer) *Logger {
	return &Logger{
		workerID: workerID,
		out:      out,
		errOut:   errOut,
	}
}

func (l *Logger) Info(msg string, meta core.ResultMetadata, context map[string]any) {
	l.log(LevelInfo, msg, meta, context)
}

func (l *Logger) Warn(msg string, meta core.ResultMetadata, context map[string]any) {
	l.log(LevelWarn, msg, meta, context)
}

func (l *Logger) Error(msg string, meta core.ResultMetadata, context map[string]any) {
	l.log(LevelError, msg, meta, context)
}

func (l *Logger) Debug(msg string, meta core.ResultMetadata, context map[string]any) {
	l.log(LevelDebug, msg, meta, context)
}

// InfoCtx logs with correlation IDs taken from a block context.
func (l *Logger) InfoCtx(msg string, bctx core.BlockContext, context map[string]any) {
	l.Info(msg, core.MetadataFromContext(bctx), context)
}

// WarnCtx logs with correlation IDs taken from a block context.
func (l *Logger) WarnCtx(msg string, bctx core.BlockContext, context map[string]any) {
	l.Warn(msg, core.MetadataFromContext(bctx), context)
}

// ErrorCtx logs with correlation IDs taken from a block context.
func (l *Logger) ErrorCtx(msg string, bctx core.BlockContext, context map[string]any) {
	l.Error(msg, core.MetadataFromContext(bctx), context)
}

func (l *Logger) log(level, msg string, meta core.ResultMetadata, context map[string]any) {
	record := map[string]any{
		"timestamp": time.Now().UTC().Format(timestampLayout),
		"level":     level,
		"component": "worker",
		"message":   msg,
	}

	if meta.TenantID != "" {
		record["tenant_id"] = meta.TenantID
	}

	if meta.RunID != "" {
		record["run_id"] = meta.RunID
	}

	if meta.FlowID != "" {
		record["flow_id"] = meta.FlowID
	}

	if meta.StepID != "" {
		record["step_id"] = meta.StepID
	}

	if meta.TraceID != "" {
		record["trace_id"] = meta.TraceID
	}

	merged := make(map[string]any, len(context)+1)
	for key, value := range context {
		merged[key] = value
	}

	merged["worker_id"] = l.workerID
	record["context"] = Redact(merged)

	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.out.Write(line)

	if level == LevelError {
		_, _ = l.errOut.Write(line)
	}
}
