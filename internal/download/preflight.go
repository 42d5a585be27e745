package download

import (
	"fmt"
	"os/exec"
	"strings"
)

// CheckFFmpeg verifies the transcoding binary is reachable: ffmpeg must
// start and exit zero for its version command. Absence is fatal for the
// whole manager; callers halt startup on error.
func CheckFFmpeg() error {
	p, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if err := exec.Command(p, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not runnable: %w", err)
	}
	return nil
}

// CheckYTDLP ensures yt-dlp is in PATH and supports --progress-template so
// the telemetry parser remains stable.
func CheckYTDLP() error {
	p, err := exec.LookPath("yt-dlp")
	if err != nil {
		return fmt.Errorf("yt-dlp not found in PATH: %w", err)
	}
	out, err := exec.Command(p, "--help").CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp not runnable: %w", err)
	}
	if !strings.Contains(string(out), "--progress-template") {
		return fmt.Errorf("yt_dlp_outdated: missing --progress-template support")
	}
	return nil
}

// Preflight runs all external-tool checks. It must pass before any task is
// accepted.
func Preflight() error {
	if err := CheckFFmpeg(); err != nil {
		return err
	}
	return CheckYTDLP()
}
