package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"audiofetch/internal/download"
	"audiofetch/internal/logging"
	"audiofetch/internal/store"
)

type taskManager interface {
	EnqueueWithQuality(url string, format download.Format, quality string) (*download.Task, error)
	Snapshot(id string) []*download.Task
	AttachDB(id string, dbID int64)
	SetMeta(id, title string, duration int64, thumb string)
}

type rateLimiter interface {
	Allow(key string) bool
}

var validate = validator.New()

type enqueueRequest struct {
	URL     string `json:"url" validate:"required,max=2048"`
	Format  string `json:"format" validate:"required,max=16"`
	Quality string `json:"quality,omitempty" validate:"omitempty,max=16"`
}

type batchRequest struct {
	URLs    []string `json:"urls" validate:"required,min=1,max=100,dive,required,max=2048"`
	Format  string   `json:"format" validate:"required,max=16"`
	Quality string   `json:"quality,omitempty" validate:"omitempty,max=16"`
}

// New returns an http.Handler with routes and middleware wired.
// A nil store disables DB-backed features.
func New(mgr taskManager, st *store.Store) http.Handler {
	rl := newIPRateLimiter(60, time.Minute) // 60 req/min/IP
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tasks", with(rl, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleEnqueue(w, r, mgr, st)
		case http.MethodGet:
			handleList(w, r, st)
		default:
			methodNotAllowed(w)
		}
	}))

	mux.HandleFunc("/api/tasks/batch", with(rl, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		handleBatch(w, r, mgr, st)
	}))

	mux.HandleFunc("/api/status", with(rl, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		id := r.URL.Query().Get("id")
		tasks := mgr.Snapshot(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "tasks": tasks})
	}))

	// Healthcheck
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Minimal logging + recover
	return recoverer(requestLogger(mux))
}

func handleEnqueue(w http.ResponseWriter, r *http.Request, mgr taskManager, st *store.Store) {
	var req enqueueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_request"})
		return
	}
	if err := validate.Struct(&req); err != nil || !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_url"})
		return
	}
	format, err := download.ParseFormat(req.Format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_format"})
		return
	}

	task, err := mgr.EnqueueWithQuality(req.URL, format, req.Quality)
	if err != nil {
		writeEnqueueError(w, err)
		return
	}

	if st != nil {
		bindRecord(r.Context(), mgr, st, task)
	}
	if task.DBID > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "enqueued", "id": task.ID, "db_id": task.DBID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "enqueued", "id": task.ID})
}

func handleBatch(w http.ResponseWriter, r *http.Request, mgr taskManager, st *store.Store) {
	var req batchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_request"})
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_request"})
		return
	}
	format, err := download.ParseFormat(req.Format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid_format"})
		return
	}

	ids := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if !validURL(u) {
			continue
		}
		task, err := mgr.EnqueueWithQuality(u, format, req.Quality)
		if err != nil {
			logging.With("url", logging.RedactURL(u)).Warn("enqueue failed", "error", err)
			continue
		}
		if st != nil {
			bindRecord(r.Context(), mgr, st, task)
		}
		ids = append(ids, task.ID)
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "no_valid_urls"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "enqueued", "ids": ids})
}

func handleList(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "history_disabled"})
		return
	}
	q := r.URL.Query()
	f := store.ListFilter{
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	}
	if lim := q.Get("limit"); lim != "" {
		if n, err := strconv.Atoi(lim); err == nil {
			f.Limit = n
		}
	}
	rows, err := st.ListTasks(r.Context(), f)
	if err != nil {
		logging.With("event", "list_tasks").Error("list tasks", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "tasks": rows})
}

// bindRecord probes metadata, creates a history row and binds it to the
// in-memory task. Probe failures degrade to URL-as-title.
func bindRecord(ctx context.Context, mgr taskManager, st *store.Store, task *download.Task) {
	title := task.URL
	var dur int64
	var thumb string
	if mi, err := download.FetchMediaInfo(task.URL); err == nil {
		title, dur, thumb = mi.Title, mi.DurationSec, mi.ThumbnailURL
	} else {
		logging.LogMetadataFetch(task.URL, err)
	}
	dbid, err := st.CreateTask(ctx, task.ID, task.URL, string(task.Format), task.Quality, string(task.Status), task.Progress)
	if err != nil {
		logging.With("event", "db_create_error").Error("create task row", "error", err)
		return
	}
	mgr.AttachDB(task.ID, dbid)
	if title != "" || dur > 0 || thumb != "" {
		mgr.SetMeta(task.ID, title, dur, thumb)
		_ = st.UpdateMeta(ctx, dbid, title, dur, thumb)
	}
	task.DBID = dbid
}

func writeEnqueueError(w http.ResponseWriter, err error) {
	if errors.Is(err, download.ErrShuttingDown) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "message": "shutting_down"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "internal_error"})
}

// Utilities

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"status": "error", "message": "method_not_allowed"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func validURL(u string) bool {
	if len(u) == 0 || len(u) > 2048 { // sanity cap
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed == nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	return true
}

// Middleware

func with(rl rateLimiter, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"status": "error", "message": "rate_limited"})
			return
		}
		h(w, r)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.With("event", "http_request").Debug("request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String())
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.With("event", "http_panic").Error("panic", "value", v)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// Respect common proxy headers, then fall back to RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return strings.TrimSpace(xr)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Simple token bucket per IP with fixed refill interval and capacity.
type ipRateLimiter struct {
	cap     int
	refill  time.Duration
	buckets map[string]*bucket
	// protect buckets
	mu sync.Mutex
}

type bucket struct {
	tokens int
	last   time.Time
}

func newIPRateLimiter(cap int, refill time.Duration) *ipRateLimiter {
	return &ipRateLimiter{cap: cap, refill: refill, buckets: make(map[string]*bucket)}
}

func (rl *ipRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	b := rl.buckets[key]
	if b == nil {
		b = &bucket{tokens: rl.cap - 1, last: now}
		rl.buckets[key] = b
		return true
	}
	// refill if interval passed
	if d := now.Sub(b.last); d >= rl.refill {
		// reset once per interval
		b.tokens = rl.cap
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
