package download

import "context"

// Progress status values reported by the extraction tool.
const (
	ProgressStatusDownloading = "downloading"
	ProgressStatusFinished    = "finished"
)

// ProgressUpdate is one raw telemetry callback from the extraction tool:
// byte counters, not percentages. Normalization happens in the Manager.
type ProgressUpdate struct {
	Status             string
	DownloadedBytes    float64
	TotalBytes         float64
	TotalBytesEstimate float64
}

// ProgressFunc receives raw progress telemetry during an extraction.
type ProgressFunc func(ProgressUpdate)

// Result describes a successful extraction.
type Result struct {
	// OutputPath is the produced audio file, when the tool reported one.
	OutputPath string
}

// Extractor is the fetch+transcode capability the manager drives but does not
// implement. Extract blocks for the duration of the download and conversion,
// invoking progress zero or more times from the calling goroutine's context.
// A nil Result with a nil error means the URL resolved to no usable media.
type Extractor interface {
	Extract(ctx context.Context, task *Task, progress ProgressFunc) (*Result, error)
}
