package download

import "errors"

var (
	// ErrShuttingDown indicates the manager is no longer accepting new tasks
	ErrShuttingDown = errors.New("shutting_down")

	// ErrNoMediaResult indicates extraction produced no usable output
	// (content unavailable, geo-blocked, private or deleted)
	ErrNoMediaResult = errors.New("no_media_result")

	// ErrUnknownFormat indicates an unrecognized audio codec identifier
	ErrUnknownFormat = errors.New("unknown_format")

	// ErrNoMediaInfo indicates metadata probing produced no results
	ErrNoMediaInfo = errors.New("no_media_info")
)
