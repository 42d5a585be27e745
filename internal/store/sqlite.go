package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"audiofetch/internal/logging"
)

// TaskRecord represents a row in the tasks table.
type TaskRecord struct {
	ID           int64     `json:"id"`
	TaskID       string    `json:"task_id"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Quality      string    `json:"quality"`
	Title        string    `json:"title"`
	Duration     int64     `json:"duration"` // seconds
	ThumbnailURL string    `json:"thumbnail_url"`
	Status       string    `json:"status"`
	Progress     float64   `json:"progress"`
	OutputPath   string    `json:"output_path,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store wraps an sql.DB and provides typed helpers.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and ensures schema.
func Open(path string) (*Store, error) {
	// Pragmas: busy timeout and WAL for better concurrency.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Conservative limits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY,
    task_id TEXT,
    url TEXT NOT NULL,
    format TEXT NOT NULL,
    quality TEXT,
    title TEXT,
    duration INTEGER,
    thumbnail_url TEXT,
    status TEXT,
    progress REAL,
    output_path TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	if err := ensureColumn(db, "tasks", "output_path", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(db, "tasks", "error_message", "TEXT"); err != nil {
		return err
	}

	return nil
}

func ensureColumn(db *sql.DB, table, column, colType string) error {
	hasCol, err := hasColumn(db, table, column)
	if err != nil {
		return err
	}
	if hasCol {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, colType))
	return err
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// CreateTask inserts a new task row and returns its ID.
func (s *Store) CreateTask(ctx context.Context, taskID, url, format, quality string, status string, progress float64) (int64, error) {
	if url == "" {
		return 0, ErrEmptyURL
	}
	st := normalizeStatus(status)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (task_id, url, format, quality, status, progress)
VALUES (?, ?, ?, ?, ?, ?)`, taskID, url, format, quality, st, progress)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get insert id: %w", err)
	}
	logging.LogDBCreate(id, url, format, st)
	return id, nil
}

// UpdateProgress sets progress and bumps updated_at.
func (s *Store) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, progress, id)
	if err != nil {
		return err
	}
	logging.LogDBUpdate("update_progress", id, map[string]any{"progress": progress})
	return nil
}

// UpdateStatus sets status (clearing or setting error_message) and bumps updated_at.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status string, errMsg string) error {
	st := normalizeStatus(status)
	var err error
	trimmedErr := strings.TrimSpace(errMsg)
	if st == "error" && trimmedErr != "" {
		_, err = s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, st, trimmedErr, id)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, error_message = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, st, id)
	}
	if err != nil {
		return err
	}
	fields := map[string]any{"status": st}
	if trimmedErr != "" {
		fields["error_message"] = trimmedErr
	}
	logging.LogDBUpdate("update_status", id, fields)
	return nil
}

// UpdateMeta updates title/duration/thumbnail if non-zero values are provided.
func (s *Store) UpdateMeta(ctx context.Context, id int64, title string, duration int64, thumbnail string) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if title != "" {
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if duration > 0 {
		sets = append(sets, "duration = ?")
		args = append(args, duration)
	}
	if thumbnail != "" {
		sets = append(sets, "thumbnail_url = ?")
		args = append(args, thumbnail)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	q := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	logging.LogDBUpdate("update_meta", id, map[string]any{"title": title, "duration": duration})
	return nil
}

// UpdateOutputPath records the produced audio file for a completed task.
func (s *Store) UpdateOutputPath(ctx context.Context, id int64, path string) error {
	if path == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET output_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, path, id)
	if err != nil {
		return err
	}
	logging.LogDBUpdate("update_output_path", id, map[string]any{"output_path": path})
	return nil
}

// ListFilter narrows and orders ListTasks results.
type ListFilter struct {
	Status string // empty = all
	Sort   string // created|updated|status|progress
	Order  string // asc|desc
	Limit  int    // <=0 means no limit
}

// ListTasks returns persisted task rows, newest first by default.
func (s *Store) ListTasks(ctx context.Context, f ListFilter) ([]TaskRecord, error) {
	q := `SELECT id, task_id, url, format, quality, COALESCE(title, ''), COALESCE(duration, 0),
       COALESCE(thumbnail_url, ''), COALESCE(status, ''), COALESCE(progress, 0),
       COALESCE(output_path, ''), COALESCE(error_message, ''), created_at, updated_at
FROM tasks`
	args := make([]any, 0, 2)
	if f.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, normalizeStatus(f.Status))
	}

	col := "created_at"
	switch f.Sort {
	case "updated":
		col = "updated_at"
	case "status":
		col = "status"
	case "progress":
		col = "progress"
	}
	dir := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		dir = "ASC"
	}
	q += fmt.Sprintf(" ORDER BY %s %s", col, dir)

	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TaskRecord, 0, 32)
	for rows.Next() {
		var r TaskRecord
		if err := rows.Scan(&r.ID, &r.TaskID, &r.URL, &r.Format, &r.Quality, &r.Title, &r.Duration,
			&r.ThumbnailURL, &r.Status, &r.Progress, &r.OutputPath, &r.ErrorMessage,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetIncomplete returns rows that never reached a terminal state, oldest
// first, for re-enqueueing at startup.
func (s *Store) GetIncomplete(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_id, url, format, quality, COALESCE(title, ''), COALESCE(duration, 0),
       COALESCE(thumbnail_url, ''), COALESCE(status, ''), COALESCE(progress, 0),
       COALESCE(output_path, ''), COALESCE(error_message, ''), created_at, updated_at
FROM tasks
WHERE status IN ('pending', 'downloading')
ORDER BY created_at ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TaskRecord, 0, limit)
	for rows.Next() {
		var r TaskRecord
		if err := rows.Scan(&r.ID, &r.TaskID, &r.URL, &r.Format, &r.Quality, &r.Title, &r.Duration,
			&r.ThumbnailURL, &r.Status, &r.Progress, &r.OutputPath, &r.ErrorMessage,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// normalizeStatus maps arbitrary status strings to the persisted vocabulary.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "downloading":
		return "downloading"
	case "completed":
		return "completed"
	case "error", "failed":
		return "error"
	case "cancelled", "canceled":
		return "cancelled"
	default:
		return "pending"
	}
}
