package analysis

import "context"

// Modality enum
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// Source tags where a unit score came from.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Unit is the smallest independently scored piece of content: the whole
// image, one sampled video frame, or one audio window. Units live only
// for the duration of a single job run and are discarded after
// aggregation.
type Unit struct {
	Index  int
	Score  float64 // probability of being fake, in [0,1]
	Source Source
	Cues   []string
}

// Outcome is what a modality analyzer hands to the aggregator.
type Outcome struct {
	Units     []Unit
	ModelUsed string
	Cues      []string
	Meta      Meta
}

// Meta carries modality-specific explanatory values. Advisory only,
// never fed back into scoring.
type Meta struct {
	FramesAnalyzed      int
	TemporalConsistency float64
	DurationSeconds     float64
	SampleRate          int
	Width               int
	Height              int
}

// Classifier places a file in one of the supported modalities based on
// a content sample, falling back to the declared type only when
// sniffing is inconclusive. Side-effect free.
type Classifier interface {
	Classify(declaredMIME, filename string, sample []byte) (Modality, error)

	// QuickReject is the cheap submission-time check on the declared
	// type alone; it errs on the side of accepting so content sniffing
	// inside the job has the final word.
	QuickReject(declaredMIME string) error
}

// Analyzer runs the extract -> score chain for one modality and returns
// per-unit scores. Implementations check ctx between units so a job can
// be interrupted cooperatively, never mid-inference.
type Analyzer interface {
	Modality() Modality
	Analyze(ctx context.Context, data []byte) (*Outcome, error)
}
