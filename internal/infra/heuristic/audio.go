package heuristic

import (
	"github.com/bramasta/verimedia/internal/infra/extract"
)

const (
	cueAudioCompression = "audio compression artifacts detected"
	cueSpectralShift    = "spectral inconsistencies found"
	cuePhaseBreaks      = "phase discontinuities detected"
	cueNoAudioArtifacts = "no obvious audio artifacts detected"
	audioCueThreshold   = 0.6

	// normalization constants for the raw feature magnitudes
	mfccVarianceScale = 50.0
	spectralStdScale  = 1000.0
	phaseRateScale    = 10.0
)

// AudioResult carries the combined score and the cues that fired for
// one audio window.
type AudioResult struct {
	Score     float64
	Cues      []string
	Artifacts float64
	Spectral  float64
	Phase     float64
}

type Audio struct{}

func NewAudio() *Audio { return &Audio{} }

// Analyze scores one windowed segment from its spectral features.
// Score = (artifacts + spectral inconsistency + phase breaks) / 3.
func (h *Audio) Analyze(w *extract.AudioWindow) AudioResult {
	res := AudioResult{
		Artifacts: clamp01(w.MFCCVariance / mfccVarianceScale),
		Spectral:  clamp01((w.CentroidStd + w.RolloffStd) / spectralStdScale),
		Phase:     clamp01(w.PhaseDiscontinuity * phaseRateScale),
	}
	res.Score = (res.Artifacts + res.Spectral + res.Phase) / 3

	if res.Artifacts > audioCueThreshold {
		res.Cues = append(res.Cues, cueAudioCompression)
	}
	if res.Spectral > audioCueThreshold {
		res.Cues = append(res.Cues, cueSpectralShift)
	}
	if res.Phase > audioCueThreshold {
		res.Cues = append(res.Cues, cuePhaseBreaks)
	}
	if len(res.Cues) == 0 {
		res.Cues = append(res.Cues, cueNoAudioArtifacts)
	}
	return res
}
