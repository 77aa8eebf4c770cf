package analyzer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	"github.com/bramasta/verimedia/internal/infra/extract"
	"github.com/bramasta/verimedia/internal/infra/heuristic"
)

type fakeFrames struct {
	frames []*extract.ImageFeatures
	err    error
}

func (f *fakeFrames) Extract(ctx context.Context, data []byte) ([]*extract.ImageFeatures, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.frames, nil
}

// seqModel replays one scripted response per call; the last one
// repeats.
type seqModel struct {
	mu     sync.Mutex
	id     string
	scores []float64
	errs   []error
	calls  int
}

func (m *seqModel) ID() string      { return m.id }
func (m *seqModel) Available() bool { return true }

func (m *seqModel) Infer(ctx context.Context, input []float32) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.errs) {
		i = len(m.errs) - 1
	}
	m.calls++
	if m.errs[i] != nil {
		return 0, m.errs[i]
	}
	return m.scores[i], nil
}

func frameFeatures(n int) []*extract.ImageFeatures {
	out := make([]*extract.ImageFeatures, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				img.SetRGBA(x, y, color.RGBA{R: 100, G: 110, B: 120, A: 255})
			}
		}
		out[i] = &extract.ImageFeatures{Pixels: img, Width: 16, Height: 16}
	}
	return out
}

func newVideoAnalyzer(frames FrameSource, m Model) *Video {
	return &Video{
		Extractor: frames,
		Frames: &Image{
			Extractor: extract.NewImageExtractor(16),
			Model:     m,
			Fallback:  heuristic.NewImage(),
			Threshold: 0.5,
			Band:      0.05,
		},
	}
}

func TestVideoAnalyzeModelScoresAllFrames(t *testing.T) {
	m := &seqModel{id: "fake-image-model", scores: []float64{0.7}, errs: []error{nil}}
	v := newVideoAnalyzer(&fakeFrames{frames: frameFeatures(3)}, m)

	out, err := v.Analyze(context.Background(), []byte("clip"))
	require.NoError(t, err)

	require.Len(t, out.Units, 3)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, "fake-image-model", out.ModelUsed)
	for _, u := range out.Units {
		assert.Equal(t, analysis.SourceModel, u.Source)
		assert.Equal(t, 0.7, u.Score)
	}
	assert.Equal(t, 3, out.Meta.FramesAnalyzed)
	// identical frame scores are fully consistent, no temporal cue
	assert.InDelta(t, 1.0, out.Meta.TemporalConsistency, 1e-9)
	assert.NotContains(t, out.Cues, "temporal inconsistencies across frames")
}

func TestVideoAnalyzeAllFramesFallBack(t *testing.T) {
	v := newVideoAnalyzer(
		&fakeFrames{frames: frameFeatures(3)},
		&fakeModel{id: "fake-image-model", available: false},
	)

	out, err := v.Analyze(context.Background(), []byte("clip"))
	require.NoError(t, err)

	// heuristic-video only when no frame saw the model
	assert.Equal(t, HeuristicVideo, out.ModelUsed)
	for _, u := range out.Units {
		assert.Equal(t, analysis.SourceHeuristic, u.Source)
	}
	assert.NotEmpty(t, out.Cues)
}

func TestVideoAnalyzeMixedFramesKeepModelID(t *testing.T) {
	// first frame scored by the model, the rest degrade per-frame
	m := &seqModel{
		id:     "fake-image-model",
		scores: []float64{0.7, 0, 0},
		errs:   []error{nil, analysis.ErrModelUnavailable, analysis.ErrModelUnavailable},
	}
	v := newVideoAnalyzer(&fakeFrames{frames: frameFeatures(3)}, m)

	out, err := v.Analyze(context.Background(), []byte("clip"))
	require.NoError(t, err)

	assert.Equal(t, "fake-image-model", out.ModelUsed)
	assert.Equal(t, analysis.SourceModel, out.Units[0].Source)
	assert.Equal(t, analysis.SourceHeuristic, out.Units[1].Source)
	assert.Equal(t, analysis.SourceHeuristic, out.Units[2].Source)
}

func TestVideoAnalyzeTemporalCue(t *testing.T) {
	m := &seqModel{
		id:     "fake-image-model",
		scores: []float64{0.1, 0.9, 0.1, 0.9},
		errs:   []error{nil, nil, nil, nil},
	}
	v := newVideoAnalyzer(&fakeFrames{frames: frameFeatures(4)}, m)

	out, err := v.Analyze(context.Background(), []byte("clip"))
	require.NoError(t, err)

	assert.Less(t, out.Meta.TemporalConsistency, 0.5)
	assert.Contains(t, out.Cues, "temporal inconsistencies across frames")
}

func TestVideoAnalyzeCanceledBetweenFrames(t *testing.T) {
	m := &seqModel{id: "fake-image-model", scores: []float64{0.7}, errs: []error{nil}}
	v := newVideoAnalyzer(&fakeFrames{frames: frameFeatures(3)}, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Analyze(ctx, []byte("clip"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrCanceled))
}
