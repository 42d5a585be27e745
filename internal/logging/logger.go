package logging

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// Logger is the global structured logger instance
	Logger *slog.Logger
)

// Init initializes the global structured logger
func Init(level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Format time as ISO8601
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "info", "INFO":
		return slog.LevelInfo
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL removes secrets from URL logs while retaining debugging value.
// It strips userinfo and masks query parameter values.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// Helper functions for common logging patterns

// LogTaskEnqueued logs acceptance of a new conversion task
func LogTaskEnqueued(taskID, url, format string) {
	if Logger == nil {
		return
	}
	Logger.Info("task enqueued",
		"event", "task_enqueued",
		"task_id", taskID,
		"url", RedactURL(url),
		"format", format)
}

// LogTaskStateChange logs task status transitions
func LogTaskStateChange(taskID, status, errMsg string) {
	if Logger == nil {
		return
	}
	if errMsg != "" {
		Logger.Error("task state change",
			"event", "task_state",
			"task_id", taskID,
			"status", status,
			"error", errMsg)
		return
	}
	Logger.Info("task state change",
		"event", "task_state",
		"task_id", taskID,
		"status", status)
}

// LogTaskProgress logs normalized progress updates
func LogTaskProgress(taskID string, progress, downloadedBytes float64) {
	if Logger == nil {
		return
	}
	Logger.Debug("task progress",
		"event", "task_progress",
		"task_id", taskID,
		"progress", progress,
		"downloaded", humanize.Bytes(uint64(downloadedBytes)))
}

// LogTaskCancelled logs tasks drained from the queue at shutdown
func LogTaskCancelled(taskID string) {
	if Logger == nil {
		return
	}
	Logger.Warn("task cancelled before start",
		"event", "task_cancelled",
		"task_id", taskID)
}

// LogManagerShutdown logs the start of manager draining
func LogManagerShutdown(cancelled int) {
	if Logger == nil {
		return
	}
	Logger.Info("manager shutting down",
		"event", "manager_shutdown",
		"cancelled", cancelled)
}

// LogExtractCommand logs yt-dlp invocations and their results
func LogExtractCommand(taskID, url, output string, success bool) {
	if Logger == nil {
		return
	}
	if success {
		Logger.Info("extraction finished",
			"event", "extract_success",
			"task_id", taskID,
			"url", RedactURL(url),
			"output", output)
	} else {
		Logger.Info("extraction started",
			"event", "extract_start",
			"task_id", taskID,
			"url", RedactURL(url),
			"output", output)
	}
}

// LogProgressScanError logs telemetry scanning errors
func LogProgressScanError(err error) {
	if Logger == nil {
		return
	}
	Logger.Warn("progress scan error",
		"event", "progress_scan_error",
		"error", err)
}

// LogPreflight logs the external-tool preflight outcome
func LogPreflight(tool string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("preflight check failed",
			"event", "preflight_error",
			"tool", tool,
			"error", err)
		return
	}
	Logger.Info("preflight check passed",
		"event", "preflight_ok",
		"tool", tool)
}

// LogMetadataFetch logs media metadata probing
func LogMetadataFetch(url string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("metadata fetch failed",
			"event", "metadata_fetch_error",
			"url", RedactURL(url),
			"error", err)
		return
	}
	Logger.Info("metadata fetched",
		"event", "metadata_fetch",
		"url", RedactURL(url))
}

// LogDBCreate logs creation of a persisted task row
func LogDBCreate(id int64, url, format, status string) {
	if Logger == nil {
		return
	}
	Logger.Info("task row created",
		"event", "db_create",
		"id", id,
		"url", RedactURL(url),
		"format", format,
		"status", status)
}

// LogDBUpdate logs task row mutations with operation context
func LogDBUpdate(operation string, id int64, fields map[string]any) {
	if Logger == nil {
		return
	}
	attrs := []any{"event", "db_update", "operation", operation, "id", id}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	Logger.Debug("task row updated", attrs...)
}

// With returns a logger with additional context
func With(attrs ...any) *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger.With(attrs...)
}
