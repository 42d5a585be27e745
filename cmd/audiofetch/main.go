package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"audiofetch/internal/config"
	"audiofetch/internal/download"
	"audiofetch/internal/logging"
	"audiofetch/internal/server"
	"audiofetch/internal/store"
)

func main() {
	cfg := config.New()

	var envFile string
	flag.StringVar(&cfg.OutputDir, "output-dir", "", "Directory for converted audio files (default: $HOME/Music/audiofetch)")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent download workers")
	flag.StringVar(&cfg.Format, "format", cfg.Format, "Default audio format (mp3|wav|m4a|vorbis|opus|flac)")
	flag.StringVar(&cfg.Quality, "quality", cfg.Quality, "Audio quality hint passed to the transcoder")
	flag.StringVar(&cfg.DBPath, "db", "", "Path to SQLite database (default: OS cache dir: audiofetch/audiofetch.db)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	flag.StringVar(&envFile, "env-file", "", "Optional .env file to load before flags apply")
	flag.Parse()

	if err := cfg.LoadEnv(envFile); err != nil {
		log.Fatalf("load env: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ResolveOutputDir(); err != nil {
		log.Fatalf("resolve output dir: %v", err)
	}
	if err := cfg.ResolveDBPath(); err != nil {
		log.Fatalf("resolve db path: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel))
	logging.With("event", "startup").Info("starting audiofetch", "config", cfg.Summary())

	if err := os.MkdirAll(cfg.AbsOutputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	// External tools must be reachable before any task is accepted.
	if err := download.CheckFFmpeg(); err != nil {
		logging.LogPreflight("ffmpeg", err)
		log.Fatalf("ffmpeg preflight failed: %v", err)
	}
	logging.LogPreflight("ffmpeg", nil)
	if err := download.CheckYTDLP(); err != nil {
		logging.LogPreflight("yt-dlp", err)
		log.Fatalf("yt-dlp preflight failed: %v", err)
	}
	logging.LogPreflight("yt-dlp", nil)

	if err := os.MkdirAll(filepath.Dir(cfg.AbsDBPath), 0o755); err != nil {
		log.Fatalf("create db dir: %v", err)
	}
	st, err := store.Open(cfg.AbsDBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	mgr := download.NewManagerWithOptions(download.Options{
		Workers:   cfg.Workers,
		Quality:   cfg.Quality,
		Extractor: download.NewYTDLPExtractor(cfg.AbsOutputDir),
	})
	mgr.RegisterObserver(store.NewTaskObserver(st))

	// Re-enqueue rows that never reached a terminal state in a prior run.
	requeueIncomplete(mgr, st, cfg)

	mgr.Start()

	mux := server.New(mgr, st)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // allow streaming status without premature timeouts
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.With("event", "listening").Info("audiofetch listening",
			"addr", cfg.Addr, "output_dir", cfg.AbsOutputDir, "workers", cfg.Workers)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	logging.With("event", "shutdown").Info("shutdown signal received; draining")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.With("event", "shutdown").Warn("http shutdown", "error", err)
	}
	mgr.Shutdown()
	// Close store after manager shutdown so observer writes finish first.
	if err := st.Close(); err != nil {
		logging.With("event", "shutdown").Warn("close db", "error", err)
	}
	logging.With("event", "shutdown").Info("shutdown complete")
}

// requeueIncomplete re-submits persisted tasks that were pending or
// downloading when the previous process exited.
func requeueIncomplete(mgr *download.Manager, st *store.Store, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := st.GetIncomplete(ctx, 100)
	if err != nil {
		logging.With("event", "requeue").Warn("query incomplete tasks", "error", err)
		return
	}
	for _, row := range rows {
		format, err := download.ParseFormat(row.Format)
		if err != nil {
			format, _ = download.ParseFormat(cfg.Format)
		}
		task, err := mgr.EnqueueWithQuality(row.URL, format, row.Quality)
		if err != nil {
			logging.With("event", "requeue").Warn("enqueue", "url", logging.RedactURL(row.URL), "error", err)
			continue
		}
		mgr.AttachDB(task.ID, row.ID)
		if row.Title != "" || row.Duration > 0 || row.ThumbnailURL != "" {
			mgr.SetMeta(task.ID, row.Title, row.Duration, row.ThumbnailURL)
		}
	}
	if len(rows) > 0 {
		logging.With("event", "requeue").Info("re-enqueued incomplete tasks", "count", len(rows))
	}
}
