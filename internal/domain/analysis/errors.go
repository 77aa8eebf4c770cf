package analysis

import "errors"

// Error taxonomy for the analysis pipeline. Callers classify failures
// with errors.Is; wrapping with fmt.Errorf("...: %w", Err...) keeps the
// classification intact across layers.
var (
	// ErrUnsupportedMediaType means the file cannot be placed in
	// {image, video, audio}. Never retried.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrCorruptInput means the file decoded to zero usable units or
	// extraction failed on malformed data. Never retried.
	ErrCorruptInput = errors.New("corrupt input")

	// ErrModelUnavailable is not a job failure; it routes the unit to
	// the heuristic fallback.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrTransientInference covers timeouts and resource contention
	// inside an adapter. Retried a bounded number of times.
	ErrTransientInference = errors.New("transient inference error")

	// ErrOverloaded is returned synchronously at submission when the
	// job queue is full. No job record is created.
	ErrOverloaded = errors.New("overloaded")

	// ErrNotFound covers unknown job ids and missing blobs.
	ErrNotFound = errors.New("not found")

	// ErrCanceled marks a job interrupted between units, typically
	// during shutdown.
	ErrCanceled = errors.New("analysis canceled")
)

// Retryable reports whether a pipeline error is worth one more attempt.
// Classifier rejections and structural corruption are final.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientInference)
}

// CauseOf maps a pipeline error to the stable cause string stored on a
// failed job.
func CauseOf(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, ErrCorruptInput):
		return "corrupt_input"
	case errors.Is(err, ErrTransientInference):
		return "transient_inference_error"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
