package download

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"audiofetch/internal/logging"
)

// outputTemplate names produced files <sanitized-title>_[<id>].<ext>;
// sanitization itself is delegated to the tool via --windows-filenames.
const outputTemplate = "%(title)s_[%(id)s].%(ext)s"

// YTDLPExtractor implements Extractor by driving the yt-dlp binary with an
// ffmpeg audio-extraction postprocessor. Raw byte-count telemetry is parsed
// from the JSON progress template yt-dlp emits on stdout/stderr.
type YTDLPExtractor struct {
	outDir string
}

// NewYTDLPExtractor creates an extractor writing into outputDir.
func NewYTDLPExtractor(outputDir string) *YTDLPExtractor {
	return &YTDLPExtractor{outDir: outputDir}
}

// Extract runs yt-dlp for the task and blocks until fetch and transcode are
// done. A run that yields no output artifact returns (nil, nil).
func (e *YTDLPExtractor) Extract(ctx context.Context, task *Task, progress ProgressFunc) (*Result, error) {
	// Defensive: ensure yt-dlp exists.
	if err := CheckYTDLP(); err != nil {
		return nil, fmt.Errorf("yt_dlp_not_found: %w", err)
	}

	outTpl := filepath.Join(e.outDir, outputTemplate)
	logging.LogExtractCommand(task.ID, task.URL, outTpl, false)

	args := buildYTDLPArgs(task.URL, outTpl, string(task.Format), task.Quality)
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)

	combined, err := runWithProgress(cmd, progress)
	if err != nil {
		return nil, err
	}

	dest := extractDestination(combined)
	if dest == "" {
		return nil, nil
	}
	logging.LogExtractCommand(task.ID, task.URL, dest, true)
	return &Result{OutputPath: dest}, nil
}

// buildYTDLPArgs constructs the yt-dlp invocation: best audio only, extract
// to the requested codec, never expand playlists.
func buildYTDLPArgs(url, outTpl, codec, quality string) []string {
	if quality == "" {
		quality = DefaultQuality
	}
	return []string{
		url,
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", codec,
		"--audio-quality", quality,
		"--no-playlist",
		"--progress-template", "download:%(progress)j",
		"--newline",
		"--no-color",
		"--windows-filenames",
		"--output", outTpl,
	}
}

// runWithProgress starts the command, scans both streams for telemetry and
// returns the combined output for artifact detection.
func runWithProgress(cmd *exec.Cmd, progress ProgressFunc) (string, error) {
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout: %w", err)
	}

	var stderrBuf, stdoutBuf bytes.Buffer

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	// Progress may appear on either stream; scan both concurrently.
	var g errgroup.Group
	g.Go(func() error {
		scanProgress(bufio.NewScanner(io.TeeReader(stderr, &stderrBuf)), progress)
		return nil
	})
	g.Go(func() error {
		scanProgress(bufio.NewScanner(io.TeeReader(stdout, &stdoutBuf)), progress)
		return nil
	})
	_ = g.Wait()

	if err := cmd.Wait(); err != nil {
		tail := tailString(stderrBuf.String(), 512)
		if tail != "" {
			return "", fmt.Errorf("yt-dlp: %w: %s", err, tail)
		}
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	return strings.TrimSpace(stdoutBuf.String() + "\n" + stderrBuf.String()), nil
}

// progressLine mirrors the fields of yt-dlp's %(progress)j template that the
// manager's normalization consumes.
type progressLine struct {
	Status             string  `json:"status"`
	DownloadedBytes    float64 `json:"downloaded_bytes"`
	TotalBytes         float64 `json:"total_bytes"`
	TotalBytesEstimate float64 `json:"total_bytes_estimate"`
}

// scanProgress parses JSON progress lines and forwards each as a raw
// ProgressUpdate. Non-JSON lines (ordinary yt-dlp output) are skipped.
func scanProgress(sc *bufio.Scanner, progress ProgressFunc) {
	sc.Buffer(make([]byte, 4096), 256*1024)
	// Split on \n, \r\n or bare \r since yt-dlp often rewrites progress on
	// the same line using carriage returns.
	sc.Split(scanCRorLF)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var pl progressLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{
				Status:             pl.Status,
				DownloadedBytes:    pl.DownloadedBytes,
				TotalBytes:         pl.TotalBytes,
				TotalBytesEstimate: pl.TotalBytesEstimate,
			})
		}
	}
	if err := sc.Err(); err != nil {
		logging.LogProgressScanError(err)
	}
}

// extractDestination finds the produced audio file in yt-dlp output.
// The audio extraction postprocessor names the final file; plain Destination
// lines are intermediate downloads and only used as a fallback.
func extractDestination(output string) string {
	var audioDest, lastDest, existing string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[ExtractAudio]") && strings.Contains(line, "Destination:") {
			if parts := strings.SplitN(line, "Destination:", 2); len(parts) == 2 {
				audioDest = strings.TrimSpace(parts[1])
			}
			continue
		}
		if strings.Contains(line, "Destination:") {
			if parts := strings.SplitN(line, "Destination:", 2); len(parts) == 2 {
				lastDest = strings.TrimSpace(parts[1])
			}
			continue
		}
		// yt-dlp reports an existing file instead of a destination when the
		// target is already on disk.
		if strings.Contains(line, "has already been downloaded") {
			if i := strings.Index(line, "] "); i != -1 {
				rest := line[i+2:]
				if j := strings.Index(rest, " has already been downloaded"); j != -1 {
					existing = strings.TrimSpace(rest[:j])
				}
			}
		}
	}
	switch {
	case audioDest != "":
		return audioDest
	case existing != "":
		return existing
	default:
		return lastDest
	}
}

// scanCRorLF is like bufio.ScanLines but treats a bare '\r' as a line
// terminator as well. It also handles CRLF and strips a trailing CR.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			line := data[:i]
			if i > 0 && data[i-1] == '\r' {
				line = data[:i-1]
			}
			return i + 1, line, nil
		}
		if data[i] == '\r' {
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		if len(data) > 0 && data[len(data)-1] == '\r' {
			return len(data), data[:len(data)-1], nil
		}
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailString returns the last at most n bytes from s.
func tailString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
