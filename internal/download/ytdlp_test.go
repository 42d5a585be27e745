package download

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectProgress(t *testing.T, raw string) []ProgressUpdate {
	t.Helper()
	var got []ProgressUpdate
	scanProgress(bufio.NewScanner(strings.NewReader(raw)), func(u ProgressUpdate) {
		got = append(got, u)
	})
	return got
}

func TestScanProgressParsesJSONLines(t *testing.T) {
	raw := `[youtube] abc: Downloading webpage
{"status":"downloading","downloaded_bytes":512,"total_bytes":2048}
{"status":"downloading","downloaded_bytes":2048,"total_bytes":2048}
{"status":"finished","downloaded_bytes":2048,"total_bytes":2048}
[ExtractAudio] Destination: /music/x.mp3
`
	got := collectProgress(t, raw)
	require.Len(t, got, 3)
	assert.Equal(t, ProgressStatusDownloading, got[0].Status)
	assert.Equal(t, 512.0, got[0].DownloadedBytes)
	assert.Equal(t, 2048.0, got[0].TotalBytes)
	assert.Equal(t, ProgressStatusFinished, got[2].Status)
}

func TestScanProgressCarriageReturnRewrites(t *testing.T) {
	// yt-dlp rewrites the progress line in place with bare \r terminators.
	raw := `{"status":"downloading","downloaded_bytes":10,"total_bytes":100}` + "\r" +
		`{"status":"downloading","downloaded_bytes":50,"total_bytes":100}` + "\r\n" +
		`{"status":"downloading","downloaded_bytes":100,"total_bytes":100}` + "\n"
	got := collectProgress(t, raw)
	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0].DownloadedBytes)
	assert.Equal(t, 50.0, got[1].DownloadedBytes)
	assert.Equal(t, 100.0, got[2].DownloadedBytes)
}

func TestScanProgressSkipsGarbage(t *testing.T) {
	raw := "not json\n{broken\n{\"status\":\"downloading\",\"downloaded_bytes\":1,\"total_bytes_estimate\":4}\n"
	got := collectProgress(t, raw)
	require.Len(t, got, 1)
	assert.Equal(t, 4.0, got[0].TotalBytesEstimate)
}

func TestBuildYTDLPArgs(t *testing.T) {
	args := buildYTDLPArgs("https://e.com/v", "/out/%(title)s_[%(id)s].%(ext)s", "mp3", "320K")
	joined := strings.Join(args, " ")

	assert.Equal(t, "https://e.com/v", args[0])
	assert.Contains(t, joined, "-f bestaudio/best")
	assert.Contains(t, joined, "--extract-audio")
	assert.Contains(t, joined, "--audio-format mp3")
	assert.Contains(t, joined, "--audio-quality 320K")
	assert.Contains(t, joined, "--no-playlist")
	assert.Contains(t, joined, "--progress-template download:%(progress)j")
	assert.Contains(t, joined, "--windows-filenames")
	assert.Contains(t, joined, "--output /out/%(title)s_[%(id)s].%(ext)s")
}

func TestBuildYTDLPArgsDefaultQuality(t *testing.T) {
	args := buildYTDLPArgs("https://e.com/v", "tpl", "wav", "")
	assert.Contains(t, strings.Join(args, " "), "--audio-quality "+DefaultQuality)
}

func TestExtractDestination(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   string
	}{
		{
			"audio postprocessor wins",
			"[download] Destination: /tmp/a.webm\n[ExtractAudio] Destination: /music/a.mp3",
			"/music/a.mp3",
		},
		{
			"already downloaded",
			"[download] /music/b.mp3 has already been downloaded",
			"/music/b.mp3",
		},
		{
			"plain destination fallback",
			"[download] Destination: /tmp/c.m4a",
			"/tmp/c.m4a",
		},
		{
			"last destination wins",
			"[download] Destination: /tmp/one.webm\n[download] Destination: /tmp/two.m4a",
			"/tmp/two.m4a",
		},
		{
			"nothing produced",
			"[youtube] abc: Downloading webpage\nERROR: Private video",
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractDestination(tc.output); got != tc.want {
				t.Fatalf("extractDestination = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestScanCRorLF(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\rb\r\nc\nd"))
	sc.Split(scanCRorLF)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"a", "b", "c", "d"}, lines)
}

func TestTailString(t *testing.T) {
	assert.Equal(t, "", tailString("anything", 0))
	assert.Equal(t, "short", tailString("short", 512))
	long := strings.Repeat("x", 100) + "tail end"
	got := tailString(long, 8)
	assert.Equal(t, "tail end", got)
}
