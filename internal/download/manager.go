package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"audiofetch/internal/logging"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 3

// maxInFlightPercent caps normalized progress while a task is still
// downloading; 100.0 is reserved for the Completed state so the transcode
// postprocessing never shows a premature 100%.
const maxInFlightPercent = 99.9

// Manager owns the pending task queue, a fixed worker pool and the observer
// list. Workers are spawned at construction but gated until Start; Shutdown
// closes the queue, cancels tasks that never started and waits for in-flight
// extractions to finish naturally.
type Manager struct {
	extractor Extractor
	registry  *TaskRegistry
	queue     *taskQueue

	// finalized before Start; not guarded against concurrent registration
	observers []Observer

	quality string

	wg      sync.WaitGroup
	gate    chan struct{}
	started atomic.Bool
	closing atomic.Bool
}

// Options configures manager construction.
type Options struct {
	Workers   int
	Quality   string // audio quality hint, e.g. "192K"
	Extractor Extractor
	Registry  *TaskRegistry
}

// NewManager creates a manager backed by the yt-dlp extractor writing into
// outputDir.
func NewManager(outputDir string, workers int) *Manager {
	return NewManagerWithOptions(Options{
		Workers:   workers,
		Extractor: NewYTDLPExtractor(outputDir),
	})
}

// NewManagerWithOptions creates a manager with explicit components, allowing
// tests to inject extractor doubles.
func NewManagerWithOptions(opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	quality := opts.Quality
	if quality == "" {
		quality = DefaultQuality
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewTaskRegistry(128)
	}
	m := &Manager{
		extractor: opts.Extractor,
		registry:  registry,
		queue:     newTaskQueue(),
		quality:   quality,
		gate:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// RegisterObserver adds an observer. Call before Start; the observer list is
// append-only and unlocked.
func (m *Manager) RegisterObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// Enqueue creates a pending task for the URL and appends it to the queue.
// It never blocks and fails only once shutdown has begun. The returned task
// is a snapshot copy; use its ID for later lookups.
func (m *Manager) Enqueue(rawURL string, format Format) (*Task, error) {
	return m.EnqueueWithQuality(rawURL, format, m.quality)
}

// EnqueueWithQuality is Enqueue with an explicit audio quality hint.
func (m *Manager) EnqueueWithQuality(rawURL string, format Format, quality string) (*Task, error) {
	if m.closing.Load() {
		return nil, ErrShuttingDown
	}
	t := NewTask(rawURL, format, quality)
	if err := m.registry.Add(t); err != nil {
		return nil, err
	}
	if !m.queue.Push(t) {
		// closed between the flag check and the push
		return nil, ErrShuttingDown
	}
	logging.LogTaskEnqueued(t.ID, rawURL, string(format))
	return m.registry.Get(t.ID), nil
}

// Start opens the worker gate. The flag transitions false to true exactly
// once; calling Start again is a no-op.
func (m *Manager) Start() {
	if m.started.CompareAndSwap(false, true) {
		close(m.gate)
	}
}

// Shutdown stops handing out queued tasks, marks never-started tasks
// Cancelled and waits for in-flight extractions to run to completion.
// Safe to call multiple times.
func (m *Manager) Shutdown() {
	if m.closing.Swap(true) {
		m.wg.Wait()
		return
	}
	pending := m.queue.Close()
	for _, t := range pending {
		m.cancel(t.ID)
	}
	logging.LogManagerShutdown(len(pending))
	// Release the gate so workers parked before Start observe the closed
	// queue and exit.
	if m.started.CompareAndSwap(false, true) {
		close(m.gate)
	}
	m.wg.Wait()
}

// Snapshot returns copies of tracked tasks. If id is non-empty, returns at
// most that task.
func (m *Manager) Snapshot(id string) []*Task { return m.registry.Snapshot(id) }

// AttachDB binds a database row ID to a task for persistence updates.
func (m *Manager) AttachDB(id string, dbID int64) {
	_ = m.registry.Attach(id, dbID)
}

// SetMeta records probed metadata on a task.
func (m *Manager) SetMeta(id, title string, duration int64, thumbnail string) {
	_ = m.registry.SetMeta(id, title, duration, thumbnail)
}

func (m *Manager) worker() {
	defer m.wg.Done()
	<-m.gate
	for {
		t, ok := m.queue.Pop()
		if !ok {
			return
		}
		m.process(t)
	}
}

// process drives one task to a terminal state. Failures of any kind are
// confined to the task: they surface as an Error notification and never
// crash the worker.
func (m *Manager) process(t *Task) {
	defer func() {
		if v := recover(); v != nil {
			m.fail(t.ID, fmt.Errorf("extractor panic: %v", v))
		}
	}()

	m.setStatus(t.ID, StatusDownloading, "")

	task := m.registry.Get(t.ID)
	res, err := m.extractor.Extract(context.Background(), task, func(u ProgressUpdate) {
		m.handleProgress(t.ID, u)
	})
	if err != nil {
		m.fail(t.ID, err)
		return
	}
	if res == nil {
		m.fail(t.ID, fmt.Errorf("%w: content not available", ErrNoMediaResult))
		return
	}

	_ = m.registry.Update(t.ID, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100.0
		t.Error = ""
		t.OutputPath = res.OutputPath
	})
	logging.LogTaskStateChange(t.ID, string(StatusCompleted), "")
	m.notify(t.ID, func(o Observer, task *Task) { o.OnTaskComplete(task) })
}

// handleProgress normalizes one raw telemetry callback and forwards it.
// Only "downloading" callbacks count; bad arithmetic degrades to 0.0 rather
// than failing the task.
func (m *Manager) handleProgress(id string, u ProgressUpdate) {
	if u.Status != ProgressStatusDownloading {
		return
	}
	p := normalizePercent(u)
	_ = m.registry.SetProgress(id, p)
	logging.LogTaskProgress(id, p, u.DownloadedBytes)
	m.notify(id, func(o Observer, task *Task) { o.OnProgressUpdate(task) })
}

// normalizePercent converts byte counters to a percentage clamped to
// [0, maxInFlightPercent]. Unknown or zero totals yield 0.0.
func normalizePercent(u ProgressUpdate) float64 {
	total := u.TotalBytes
	if total <= 0 {
		total = u.TotalBytesEstimate
	}
	if total <= 0 || u.DownloadedBytes < 0 {
		return 0.0
	}
	p := u.DownloadedBytes / total * 100.0
	if p > maxInFlightPercent {
		p = maxInFlightPercent
	}
	if p < 0 {
		p = 0.0
	}
	return p
}

func (m *Manager) fail(id string, err error) {
	msg := err.Error()
	// reduce noise from long command errors
	if len(msg) > 512 {
		msg = msg[:512]
	}
	m.setStatus(id, StatusError, msg)
	m.notify(id, func(o Observer, task *Task) { o.OnTaskError(task) })
}

func (m *Manager) cancel(id string) {
	m.setStatus(id, StatusCancelled, "")
	logging.LogTaskCancelled(id)
	task := m.registry.Get(id)
	if task == nil {
		return
	}
	for _, o := range m.observers {
		if co, ok := o.(CancelObserver); ok {
			co.OnTaskCancelled(task)
		}
	}
}

func (m *Manager) setStatus(id string, status Status, errMsg string) {
	_ = m.registry.SetStatus(id, status, errMsg)
	if status != StatusCancelled {
		logging.LogTaskStateChange(id, string(status), errMsg)
	}
}

// notify invokes fn for every observer with a snapshot copy of the task.
func (m *Manager) notify(id string, fn func(Observer, *Task)) {
	task := m.registry.Get(id)
	if task == nil {
		return
	}
	for _, o := range m.observers {
		fn(o, task)
	}
}
