package jobs

// Metadata holds modality-specific explanatory cues. Advisory only;
// nothing downstream computes on these values.
type Metadata struct {
	Cues                []string  `json:"cues,omitempty"`
	UnitScores          []float64 `json:"unit_scores,omitempty"`
	FramesAnalyzed      int       `json:"frames_analyzed,omitempty"`
	TemporalConsistency float64   `json:"temporal_consistency,omitempty"`
	DurationSeconds     float64   `json:"duration_seconds,omitempty"`
	SampleRate          int       `json:"sample_rate,omitempty"`
	Width               int       `json:"width,omitempty"`
	Height              int       `json:"height,omitempty"`
}

// Result is attached exactly once, when the job transitions to
// completed, and never mutated afterwards.
type Result struct {
	JobID                 ID       `json:"job_id"`
	IsFake                bool     `json:"is_fake"`
	Confidence            float64  `json:"confidence"`
	ModelUsed             string   `json:"model_used"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	Metadata              Metadata `json:"metadata"`
}
