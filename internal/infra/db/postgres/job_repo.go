package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
)

// JobRepository is the Postgres variant of the job + result store.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO analysis_jobs
(id, file_ref, file_name, declared_mime, modality, state, cause,
 submitted_at, completed_at,
 is_fake, confidence, model_used, processing_time_s, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
 modality=EXCLUDED.modality, state=EXCLUDED.state, cause=EXCLUDED.cause,
 completed_at=EXCLUDED.completed_at,
 is_fake=EXCLUDED.is_fake, confidence=EXCLUDED.confidence,
 model_used=EXCLUDED.model_used, processing_time_s=EXCLUDED.processing_time_s,
 metadata=EXCLUDED.metadata;
`
	var (
		completedAt sql.NullTime
		isFake      sql.NullBool
		confidence  sql.NullFloat64
		modelUsed   sql.NullString
		procTime    sql.NullFloat64
		metadata    sql.NullString
	)
	if !j.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: j.CompletedAt, Valid: true}
	}
	if j.Result != nil {
		isFake = sql.NullBool{Bool: j.Result.IsFake, Valid: true}
		confidence = sql.NullFloat64{Float64: j.Result.Confidence, Valid: true}
		modelUsed = sql.NullString{String: j.Result.ModelUsed, Valid: true}
		procTime = sql.NullFloat64{Float64: j.Result.ProcessingTimeSeconds, Valid: true}
		meta, err := json.Marshal(j.Result.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(meta), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, q,
		j.ID, j.FileRef, j.FileName, j.DeclaredMIME, string(j.Modality),
		string(j.State), j.Cause, j.SubmittedAt, completedAt,
		isFake, confidence, modelUsed, procTime, metadata,
	)
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.ID) (*domain.Job, error) {
	const q = `
SELECT id, file_ref, file_name, declared_mime, modality, state, cause,
       submitted_at, completed_at,
       is_fake, confidence, model_used, processing_time_s, metadata
FROM analysis_jobs
WHERE id=$1 LIMIT 1;
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, analysis.ErrNotFound)
	}
	return j, err
}

func (r *JobRepository) UpdateState(ctx context.Context, id domain.ID, state domain.State, cause string) error {
	const q = `UPDATE analysis_jobs SET state = $1, cause = $2 WHERE id = $3;`
	_, err := r.db.ExecContext(ctx, q, string(state), cause, id)
	return err
}

func (r *JobRepository) Latest(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, file_ref, file_name, declared_mime, modality, state, cause,
       submitted_at, completed_at,
       is_fake, confidence, model_used, processing_time_s, metadata
FROM analysis_jobs
ORDER BY submitted_at DESC LIMIT $1;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j           domain.Job
		modality    string
		state       string
		submittedAt time.Time
		completedAt sql.NullTime
		isFake      sql.NullBool
		confidence  sql.NullFloat64
		modelUsed   sql.NullString
		procTime    sql.NullFloat64
		metadata    sql.NullString
	)
	if err := row.Scan(
		&j.ID, &j.FileRef, &j.FileName, &j.DeclaredMIME, &modality,
		&state, &j.Cause, &submittedAt, &completedAt,
		&isFake, &confidence, &modelUsed, &procTime, &metadata,
	); err != nil {
		return nil, err
	}
	j.Modality = analysis.Modality(modality)
	j.State = domain.State(state)
	j.SubmittedAt = submittedAt
	if completedAt.Valid {
		j.CompletedAt = completedAt.Time
	}
	if modelUsed.Valid && modelUsed.String != "" {
		res := &domain.Result{
			JobID:      j.ID,
			IsFake:     isFake.Bool,
			Confidence: confidence.Float64,
			ModelUsed:  modelUsed.String,
		}
		if procTime.Valid {
			res.ProcessingTimeSeconds = procTime.Float64
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &res.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		j.Result = res
	}
	return &j, nil
}
