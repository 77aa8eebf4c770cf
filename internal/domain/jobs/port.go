package jobs

import (
	"context"
	"io"
)

// Repository port (interface for job + result persistence)
type Repository interface {
	// Save upserts the full job record, including the attached result
	// when present.
	Save(ctx context.Context, j *Job) error

	// Get returns the job or analysis.ErrNotFound.
	Get(ctx context.Context, id ID) (*Job, error)

	// UpdateState persists a state transition and, for failures, the
	// structured cause.
	UpdateState(ctx context.Context, id ID, state State, cause string) error

	// Latest returns the most recently submitted jobs.
	Latest(ctx context.Context, limit int) ([]*Job, error)
}

// BlobStore port (interface for the raw upload bytes, keyed by file
// reference). The pipeline only ever reads; the upload path writes and
// deletes again when the submission is rejected.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an upload. Unknown keys are not an error.
	Delete(ctx context.Context, key string) error
}
