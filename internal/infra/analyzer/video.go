package analyzer

import (
	"context"
	"fmt"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	"github.com/bramasta/verimedia/internal/infra/extract"
	"github.com/bramasta/verimedia/internal/infra/heuristic"
)

const maxVideoCues = 5

// FrameSource port (satisfied by extract.VideoExtractor and by test
// fakes, mirroring the Model port)
type FrameSource interface {
	Extract(ctx context.Context, data []byte) ([]*extract.ImageFeatures, error)
}

type Video struct {
	Extractor FrameSource
	Frames    *Image // per-frame scoring, shares the image model
}

func (a *Video) Modality() analysis.Modality { return analysis.ModalityVideo }

func (a *Video) Analyze(ctx context.Context, data []byte) (*analysis.Outcome, error) {
	frames, err := a.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	var (
		units     []analysis.Unit
		cues      []string
		scores    []float64
		usedModel bool
	)
	for i, feats := range frames {
		// cooperative cancellation between frames, never mid-inference
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, analysis.ErrCanceled)
		}
		unit, fromModel, err := a.Frames.scoreUnit(ctx, i, feats)
		if err != nil {
			return nil, err
		}
		usedModel = usedModel || fromModel
		units = append(units, unit)
		cues = append(cues, unit.Cues...)
		scores = append(scores, unit.Score)
	}

	consistency := heuristic.TemporalConsistency(scores)
	if cue, ok := heuristic.TemporalCue(consistency); ok {
		cues = append(cues, cue)
	}

	out := &analysis.Outcome{
		Units: units,
		Cues:  dedupeCues(cues, maxVideoCues),
		Meta: analysis.Meta{
			FramesAnalyzed:      len(units),
			TemporalConsistency: consistency,
		},
	}
	out.ModelUsed = HeuristicVideo
	if usedModel {
		out.ModelUsed = a.Frames.Model.ID()
	}
	return out, nil
}
