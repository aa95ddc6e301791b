package models

import (
	"context"
	"errors"
)

// Document-scoped errors. Both are fatal: no transcript is produced.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
)

// Page-scoped errors. They are recorded on the page's RecognitionResult and
// never abort sibling pages.
var (
	ErrRasterizationFailed = errors.New("rasterization failed")
	ErrRecognitionFailed   = errors.New("recognition failed")
	ErrTimeout             = errors.New("page timed out")
	ErrCancelled           = errors.New("cancelled")
)

// Cause names the kind of failure recorded on a failed page.
type Cause string

const (
	CauseNone                Cause = ""
	CauseRasterizationFailed Cause = "RASTERIZATION_FAILED"
	CauseRecognitionFailed   Cause = "RECOGNITION_FAILED"
	CauseTimeout             Cause = "TIMEOUT"
	CauseCancelled           Cause = "CANCELLED"
)

// CauseOf maps a page error to its Cause. Timeout and cancellation take
// precedence because they may wrap an engine error.
func CauseOf(err error) Cause {
	switch {
	case err == nil:
		return CauseNone
	case errors.Is(err, ErrTimeout):
		return CauseTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CauseCancelled
	case errors.Is(err, ErrRasterizationFailed):
		return CauseRasterizationFailed
	default:
		return CauseRecognitionFailed
	}
}
