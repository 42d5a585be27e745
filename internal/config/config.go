package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"audiofetch/internal/download"
)

// Config holds all configuration for the audiofetch application
type Config struct {
	// Server configuration
	Host string
	Port int
	Addr string // computed from Host:Port

	// File system
	OutputDir    string // user-provided
	AbsOutputDir string // resolved/absolute path
	DBPath       string // user-provided
	AbsDBPath    string // resolved/absolute path

	// Conversion behavior
	Workers int    // concurrent download workers
	Format  string // default audio codec
	Quality string // audio quality hint, e.g. 192K

	// Logging
	LogLevel string // debug|info|warn|error

	// Validation & computed
	Version   string    // app version
	StartTime time.Time // when the app started
}

// New creates a Config with default values
func New() *Config {
	return &Config{
		Host:      "0.0.0.0",
		Port:      8080,
		Workers:   download.DefaultWorkers,
		Format:    string(download.FormatMP3),
		Quality:   download.DefaultQuality,
		LogLevel:  "info",
		StartTime: time.Now(),
		Version:   "1.0.0",
	}
}

// LoadEnv overlays configuration from the environment, optionally reading a
// .env file first. A missing .env file is not an error.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		// best effort: pick up a .env in the working directory
		_ = godotenv.Load()
	}

	if v := os.Getenv("AUDIOFETCH_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("AUDIOFETCH_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDIOFETCH_PORT: %w", err)
		}
		c.Port = p
	}
	if v := os.Getenv("AUDIOFETCH_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("AUDIOFETCH_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("AUDIOFETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDIOFETCH_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("AUDIOFETCH_FORMAT"); v != "" {
		c.Format = v
	}
	if v := os.Getenv("AUDIOFETCH_QUALITY"); v != "" {
		c.Quality = v
	}
	if v := os.Getenv("AUDIOFETCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	// Validate port range
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}

	// Validate workers
	if c.Workers < 1 {
		c.Workers = download.DefaultWorkers
	}

	// Validate audio format
	f, err := download.ParseFormat(c.Format)
	if err != nil {
		return fmt.Errorf("invalid format: %s", c.Format)
	}
	c.Format = string(f)

	if c.Quality == "" {
		c.Quality = download.DefaultQuality
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	c.LogLevel = strings.ToLower(c.LogLevel)
	valid := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (must be debug|info|warn|error)", c.LogLevel)
	}

	// Compute address
	c.Addr = c.ComputeAddr()

	return nil
}

// ResolveOutputDir expands the output directory path and resolves it to an
// absolute path. If empty, defaults to $HOME/Music/audiofetch
func (c *Config) ResolveOutputDir() error {
	if c.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		c.OutputDir = filepath.Join(home, "Music", "audiofetch")
	}

	expanded, err := expandHome(c.OutputDir)
	if err != nil {
		return err
	}
	c.OutputDir = expanded

	abs, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.OutputDir, err)
	}
	c.AbsOutputDir = abs

	return nil
}

// ResolveDBPath expands the database path and resolves it to an absolute
// path. If empty, defaults to the OS cache directory
func (c *Config) ResolveDBPath() error {
	if c.DBPath == "" {
		c.DBPath = defaultCacheDBPath()
	}

	expanded, err := expandHome(c.DBPath)
	if err != nil {
		return err
	}
	c.DBPath = expanded

	abs, err := filepath.Abs(c.DBPath)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.DBPath, err)
	}
	c.AbsDBPath = abs

	return nil
}

// expandHome substitutes a leading ~ with the user home directory
func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// ComputeAddr returns the full server address as host:port
func (c *Config) ComputeAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String returns a pretty-printed representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(`Config{
  Server:
    Host: %s
    Port: %d
    Addr: %s
  Files:
    OutputDir: %s (resolved: %s)
    DBPath: %s (resolved: %s)
  Conversion:
    Workers: %d
    Format: %s
    Quality: %s
  Logging:
    LogLevel: %s
  Meta:
    Version: %s
    StartTime: %s
}`, c.Host, c.Port, c.Addr,
		c.OutputDir, c.AbsOutputDir,
		c.DBPath, c.AbsDBPath,
		c.Workers, c.Format, c.Quality,
		c.LogLevel,
		c.Version, c.StartTime.Format(time.RFC3339))
}

// Summary returns a one-line summary of key configuration
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"addr":       c.Addr,
		"output_dir": c.AbsOutputDir,
		"db_path":    c.AbsDBPath,
		"workers":    c.Workers,
		"format":     c.Format,
		"quality":    c.Quality,
		"log_level":  c.LogLevel,
		"version":    c.Version,
	}
}

// defaultCacheDBPath returns the cross-platform default path for the SQLite DB
// - Windows: %APPDATA%/audiofetch/audiofetch.db
// - Linux/macOS: $HOME/.cache/audiofetch/audiofetch.db
func defaultCacheDBPath() string {
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "audiofetch", "audiofetch.db")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "AppData", "Roaming", "audiofetch", "audiofetch.db")
		}
		return "audiofetch.db"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "audiofetch", "audiofetch.db")
	}
	return filepath.Join("audiofetch", "audiofetch.db")
}
