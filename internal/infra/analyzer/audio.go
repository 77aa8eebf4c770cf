package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	"github.com/bramasta/verimedia/internal/infra/extract"
	"github.com/bramasta/verimedia/internal/infra/heuristic"
)

const maxAudioCues = 5

type Audio struct {
	Extractor *extract.AudioExtractor
	Model     Model
	Fallback  *heuristic.Audio
	Threshold float64
	Band      float64
}

func (a *Audio) Modality() analysis.Modality { return analysis.ModalityAudio }

func (a *Audio) Analyze(ctx context.Context, data []byte) (*analysis.Outcome, error) {
	feats, err := a.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	var (
		units     []analysis.Unit
		cues      []string
		usedModel bool
	)
	for i := range feats.Windows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, analysis.ErrCanceled)
		}
		unit, fromModel, err := a.scoreWindow(ctx, i, &feats.Windows[i])
		if err != nil {
			return nil, err
		}
		usedModel = usedModel || fromModel
		units = append(units, unit)
		cues = append(cues, unit.Cues...)
	}

	out := &analysis.Outcome{
		Units: units,
		Cues:  dedupeCues(cues, maxAudioCues),
		Meta: analysis.Meta{
			DurationSeconds: feats.DurationSeconds,
			SampleRate:      feats.SampleRate,
		},
	}
	out.ModelUsed = HeuristicAudio
	if usedModel {
		out.ModelUsed = a.Model.ID()
	}
	return out, nil
}

func (a *Audio) scoreWindow(ctx context.Context, idx int, w *extract.AudioWindow) (analysis.Unit, bool, error) {
	if a.Model != nil && a.Model.Available() {
		score, err := a.Model.Infer(ctx, pcmToFloat32(w.PCM))
		switch {
		case err == nil:
			unit := analysis.Unit{
				Index:  idx,
				Score:  analysis.Clamp01(score),
				Source: analysis.SourceModel,
			}
			if analysis.InLowTrustBand(unit.Score, a.Threshold, a.Band) {
				h := a.Fallback.Analyze(w)
				unit.Cues = h.Cues
			}
			return unit, true, nil
		case errors.Is(err, analysis.ErrModelUnavailable):
			// fall through to heuristic
		default:
			return analysis.Unit{}, false, fmt.Errorf("audio inference: %w", err)
		}
	}

	h := a.Fallback.Analyze(w)
	return analysis.Unit{
		Index:  idx,
		Score:  analysis.Clamp01(h.Score),
		Source: analysis.SourceHeuristic,
		Cues:   h.Cues,
	}, false, nil
}

func pcmToFloat32(pcm []float64) []float32 {
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v)
	}
	return out
}
