package download

import (
	"bufio"
	"encoding/json"
	"os/exec"
	"strings"
)

// MediaInfo contains minimal metadata extracted from yt-dlp -j.
type MediaInfo struct {
	Title        string
	DurationSec  int64
	ThumbnailURL string
}

// FetchMediaInfo runs `yt-dlp -j` and returns the first parsed media info.
// On failure, returns a zero MediaInfo and an error.
func FetchMediaInfo(url string) (MediaInfo, error) {
	if err := CheckYTDLP(); err != nil {
		return MediaInfo{}, err
	}
	cmd := exec.Command("yt-dlp", "-j", "--no-playlist", url)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return MediaInfo{}, err
	}
	if err := cmd.Start(); err != nil {
		return MediaInfo{}, err
	}
	defer cmd.Wait()

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		if mi, ok := parseMediaInfo(ln, url); ok {
			return mi, nil
		}
	}
	if err := sc.Err(); err != nil {
		return MediaInfo{}, err
	}
	return MediaInfo{}, ErrNoMediaInfo
}

// parseMediaInfo decodes one -j line; fields may be missing, so parse
// generically and fall back to the URL as the title.
func parseMediaInfo(line, url string) (MediaInfo, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return MediaInfo{}, false
	}
	mi := MediaInfo{Title: url}
	if v, ok := m["title"].(string); ok && v != "" {
		mi.Title = v
	}
	if v, ok := m["duration"].(float64); ok {
		mi.DurationSec = int64(v)
	}
	if v, ok := m["thumbnail"].(string); ok {
		mi.ThumbnailURL = v
	}
	if mi.ThumbnailURL == "" {
		if arr, ok := m["thumbnails"].([]any); ok && len(arr) > 0 {
			if obj, ok := arr[0].(map[string]any); ok {
				if u, ok := obj["url"].(string); ok {
					mi.ThumbnailURL = u
				}
			}
		}
	}
	return mi, true
}
