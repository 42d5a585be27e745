package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"audiofetch/internal/download"
	"audiofetch/internal/logging"
)

// TaskObserver persists manager task transitions. Writes are best-effort
// with a short timeout so a slow disk never stalls the worker that fired
// the notification.
type TaskObserver struct {
	st *Store
}

// NewTaskObserver returns an observer writing through st.
func NewTaskObserver(st *Store) *TaskObserver {
	return &TaskObserver{st: st}
}

func (o *TaskObserver) OnProgressUpdate(t *download.Task) {
	if t.DBID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.st.UpdateProgress(ctx, t.DBID, t.Progress); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("progress_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
}

func (o *TaskObserver) OnTaskComplete(t *download.Task) {
	if t.DBID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.st.UpdateProgress(ctx, t.DBID, t.Progress); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("progress_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
	if err := o.st.UpdateStatus(ctx, t.DBID, string(t.Status), ""); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("status_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
	if err := o.st.UpdateOutputPath(ctx, t.DBID, t.OutputPath); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("output_path_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
}

func (o *TaskObserver) OnTaskError(t *download.Task) {
	if t.DBID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.st.UpdateStatus(ctx, t.DBID, string(t.Status), t.Error); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("status_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
}

func (o *TaskObserver) OnTaskCancelled(t *download.Task) {
	if t.DBID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.st.UpdateStatus(ctx, t.DBID, string(t.Status), ""); err != nil && !isExpectedError(err) {
		logging.LogDBUpdate("status_write_failed", t.DBID, map[string]any{"error": err.Error()})
	}
}

// isExpectedError filters failures that routinely occur while the process is
// shutting down and the database is already closed.
func isExpectedError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
