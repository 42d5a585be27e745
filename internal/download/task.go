package download

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Format is a target audio codec identifier accepted by the transcode pipeline.
type Format string

const (
	FormatMP3    Format = "mp3"
	FormatWAV    Format = "wav"
	FormatM4A    Format = "m4a"
	FormatVorbis Format = "vorbis"
	FormatOpus   Format = "opus"
	FormatFLAC   Format = "flac"
)

// DefaultQuality is the audio quality hint passed to the transcoder when the
// caller does not choose one (matches the 192 kbps default of the UI presets).
const DefaultQuality = "192K"

// ParseFormat validates a codec identifier. The "ogg" alias maps to vorbis.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMP3:
		return FormatMP3, nil
	case FormatWAV:
		return FormatWAV, nil
	case FormatM4A:
		return FormatM4A, nil
	case FormatVorbis, Format("ogg"):
		return FormatVorbis, nil
	case FormatOpus:
		return FormatOpus, nil
	case FormatFLAC:
		return FormatFLAC, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Formats lists the accepted codec identifiers in presentation order.
func Formats() []Format {
	return []Format{FormatMP3, FormatWAV, FormatM4A, FormatVorbis, FormatOpus, FormatFLAC}
}

// Task is a single URL-to-audio conversion request and its lifecycle state.
// URL, Format and Quality are immutable after creation. The mutable fields
// (Progress, Status, Error, OutputPath) are written only by the one worker
// that owns the task from dequeue until a terminal status.
type Task struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Format   Format  `json:"format"`
	Quality  string  `json:"quality,omitempty"`
	Progress float64 `json:"progress"` // 0-100
	Status   Status  `json:"status"`
	Error    string  `json:"error,omitempty"`

	// Optional metadata filled in by the media probe.
	Title        string `json:"title,omitempty"`
	Duration     int64  `json:"duration,omitempty"` // seconds
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// Path of the produced audio file, set on completion.
	OutputPath string `json:"output_path,omitempty"`

	// Optional database binding for persistence updates.
	DBID int64 `json:"db_id,omitempty"`

	enqueuedAt time.Time
	updatedAt  time.Time
}

// NewTask creates a pending task with a fresh ID.
func NewTask(url string, format Format, quality string) *Task {
	if quality == "" {
		quality = DefaultQuality
	}
	now := time.Now()
	return &Task{
		ID:         uuid.NewString(),
		URL:        url,
		Format:     format,
		Quality:    quality,
		Status:     StatusPending,
		enqueuedAt: now,
		updatedAt:  now,
	}
}
