package jobs

import (
	"fmt"
	"time"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

// ID tipe for an analysis job
type ID string

// State enum
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// canTransition encodes the monotonic forward-only state machine:
// queued -> running -> {completed | failed}.
func (s State) canTransition(to State) bool {
	switch s {
	case StateQueued:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Aggregate Root: Job
type Job struct {
	ID           ID                `json:"id"`
	FileRef      string            `json:"file_ref"`
	FileName     string            `json:"file_name,omitempty"`
	DeclaredMIME string            `json:"declared_mime,omitempty"`
	Modality     analysis.Modality `json:"modality,omitempty"`
	State        State             `json:"state"`
	Cause        string            `json:"cause,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	CompletedAt  time.Time         `json:"completed_at,omitzero"`
	Result       *Result           `json:"result,omitempty"`
}

// New creates a job in the queued state.
func New(id ID, fileRef, fileName, declaredMIME string, now time.Time) *Job {
	return &Job{
		ID:           id,
		FileRef:      fileRef,
		FileName:     fileName,
		DeclaredMIME: declaredMIME,
		State:        StateQueued,
		SubmittedAt:  now,
	}
}

// Transition moves the job forward, rejecting anything that would leave
// a terminal state or go backwards.
func (j *Job) Transition(to State) error {
	if !j.State.canTransition(to) {
		return fmt.Errorf("illegal job transition %s -> %s", j.State, to)
	}
	j.State = to
	return nil
}

// SetModality pins the modality once classification has run. Immutable
// afterwards.
func (j *Job) SetModality(m analysis.Modality) error {
	if j.Modality != "" && j.Modality != m {
		return fmt.Errorf("modality already set to %s", j.Modality)
	}
	j.Modality = m
	return nil
}

// Complete attaches the result and moves to completed in one step, so a
// completed job always carries a result.
func (j *Job) Complete(res *Result, now time.Time) error {
	if res == nil || res.ModelUsed == "" {
		return fmt.Errorf("result without modelUsed is invalid")
	}
	if err := j.Transition(StateCompleted); err != nil {
		return err
	}
	res.JobID = j.ID
	j.Result = res
	j.CompletedAt = now
	return nil
}

// Fail records the structured cause and moves to failed.
func (j *Job) Fail(cause string, now time.Time) error {
	if err := j.Transition(StateFailed); err != nil {
		return err
	}
	j.Cause = cause
	j.CompletedAt = now
	return nil
}
