// Package analyzer wires one extractor, one primary model adapter and
// one heuristic fallback into the scoring chain for each modality. The
// model score is authoritative whenever the model is available; inside
// the low-trust band around the decision threshold the heuristic runs
// as well and contributes its cues.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	"github.com/bramasta/verimedia/internal/infra/extract"
	"github.com/bramasta/verimedia/internal/infra/heuristic"
)

// Model port (interface for the primary model adapters, satisfied by
// the tflite package and by test fakes)
type Model interface {
	ID() string
	Available() bool
	Infer(ctx context.Context, input []float32) (float64, error)
}

const (
	HeuristicImage = "heuristic-image"
	HeuristicVideo = "heuristic-video"
	HeuristicAudio = "heuristic-audio"
)

type Image struct {
	Extractor *extract.ImageExtractor
	Model     Model
	Fallback  *heuristic.Image
	Threshold float64
	Band      float64
}

func (a *Image) Modality() analysis.Modality { return analysis.ModalityImage }

func (a *Image) Analyze(ctx context.Context, data []byte) (*analysis.Outcome, error) {
	feats, err := a.Extractor.Extract(data)
	if err != nil {
		return nil, err
	}

	unit, usedModel, err := a.scoreUnit(ctx, 0, feats)
	if err != nil {
		return nil, err
	}

	out := &analysis.Outcome{
		Units: []analysis.Unit{unit},
		Cues:  unit.Cues,
		Meta:  analysis.Meta{Width: feats.Width, Height: feats.Height},
	}
	out.ModelUsed = HeuristicImage
	if usedModel {
		out.ModelUsed = a.Model.ID()
	}
	return out, nil
}

// scoreUnit scores a single image or video frame. Also used per frame
// by the video analyzer.
func (a *Image) scoreUnit(ctx context.Context, idx int, feats *extract.ImageFeatures) (analysis.Unit, bool, error) {
	if a.Model != nil && a.Model.Available() {
		score, err := a.Model.Infer(ctx, feats.Tensor)
		switch {
		case err == nil:
			unit := analysis.Unit{
				Index:  idx,
				Score:  analysis.Clamp01(score),
				Source: analysis.SourceModel,
			}
			if analysis.InLowTrustBand(unit.Score, a.Threshold, a.Band) {
				// borderline model score: run the heuristic too so the
				// result carries its cues
				h := a.Fallback.Analyze(feats.Pixels)
				unit.Cues = h.Cues
			}
			return unit, true, nil
		case errors.Is(err, analysis.ErrModelUnavailable):
			// fall through to heuristic
		default:
			return analysis.Unit{}, false, fmt.Errorf("image inference: %w", err)
		}
	}

	h := a.Fallback.Analyze(feats.Pixels)
	return analysis.Unit{
		Index:  idx,
		Score:  analysis.Clamp01(h.Score),
		Source: analysis.SourceHeuristic,
		Cues:   h.Cues,
	}, false, nil
}

// dedupeCues keeps first occurrences, capped so metadata stays small.
func dedupeCues(cues []string, limit int) []string {
	seen := make(map[string]struct{}, len(cues))
	var out []string
	for _, c := range cues {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
