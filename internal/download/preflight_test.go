package download

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFakeBin drops an executable shell script named name into dir.
func writeFakeBin(t *testing.T, dir, name, script string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
}

func TestCheckFFmpeg(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes require a POSIX shell")
	}
	dir := t.TempDir()
	t.Setenv("PATH", dir)

	if err := CheckFFmpeg(); err == nil {
		t.Fatal("CheckFFmpeg passed with empty PATH")
	}

	writeFakeBin(t, dir, "ffmpeg", `echo "ffmpeg version 6.0"; exit 0`)
	if err := CheckFFmpeg(); err != nil {
		t.Fatalf("CheckFFmpeg with working fake: %v", err)
	}

	writeFakeBin(t, dir, "ffmpeg", "exit 1")
	if err := CheckFFmpeg(); err == nil {
		t.Fatal("CheckFFmpeg passed with broken binary")
	}
}

func TestCheckYTDLP(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes require a POSIX shell")
	}
	dir := t.TempDir()
	t.Setenv("PATH", dir)

	if err := CheckYTDLP(); err == nil {
		t.Fatal("CheckYTDLP passed with empty PATH")
	}

	writeFakeBin(t, dir, "yt-dlp", `echo "Usage: yt-dlp [OPTIONS] URL"; echo "  --progress-template TEMPLATE"`)
	if err := CheckYTDLP(); err != nil {
		t.Fatalf("CheckYTDLP with capable fake: %v", err)
	}

	// old releases without the progress template flag are rejected
	writeFakeBin(t, dir, "yt-dlp", `echo "Usage: yt-dlp [OPTIONS] URL"`)
	if err := CheckYTDLP(); err == nil {
		t.Fatal("CheckYTDLP passed without --progress-template support")
	}
}

func TestPreflight(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes require a POSIX shell")
	}
	dir := t.TempDir()
	t.Setenv("PATH", dir)

	writeFakeBin(t, dir, "ffmpeg", "exit 0")
	writeFakeBin(t, dir, "yt-dlp", `echo "  --progress-template TEMPLATE"`)
	if err := Preflight(); err != nil {
		t.Fatalf("Preflight with both fakes: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "ffmpeg")); err != nil {
		t.Fatal(err)
	}
	if err := Preflight(); err == nil {
		t.Fatal("Preflight passed without ffmpeg")
	}
}
