package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/go-audio/wav"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

// AudioWindow is one fixed-length segment with its model input (raw
// PCM) and the spectral features the heuristic analyzer consumes.
type AudioWindow struct {
	PCM                []float64 // mono, normalized to [-1,1]
	MFCC               []float64 // per-coefficient mean over frames
	MFCCVariance       float64   // mean per-coefficient variance over frames
	Centroid           float64   // Hz, mean over frames
	CentroidStd        float64
	Rolloff            float64 // Hz, mean over frames
	RolloffStd         float64
	PhaseDiscontinuity float64 // fraction of large instantaneous-phase jumps
}

type AudioFeatures struct {
	Windows         []AudioWindow
	SampleRate      int
	DurationSeconds float64
}

// AudioExtractor decodes to mono PCM at a fixed rate and segments into
// non-overlapping windows. WAV at the target rate is decoded natively;
// everything else goes through ffmpeg first.
type AudioExtractor struct {
	sampleRate    int
	windowSeconds int
	maxSeconds    int
}

func NewAudioExtractor(sampleRate, windowSeconds, maxSeconds int) *AudioExtractor {
	return &AudioExtractor{
		sampleRate:    sampleRate,
		windowSeconds: windowSeconds,
		maxSeconds:    maxSeconds,
	}
}

func (e *AudioExtractor) Extract(ctx context.Context, data []byte) (*AudioFeatures, error) {
	pcm, err := e.decodeMono(ctx, data)
	if err != nil {
		return nil, err
	}
	if limit := e.maxSeconds * e.sampleRate; len(pcm) > limit {
		pcm = pcm[:limit]
	}

	winLen := e.windowSeconds * e.sampleRate
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio decoded to zero samples: %w", analysis.ErrCorruptInput)
	}

	var windows []AudioWindow
	for off := 0; off < len(pcm); off += winLen {
		end := off + winLen
		if end > len(pcm) {
			// pad a trailing window that is at least half full,
			// otherwise drop it
			if len(pcm)-off < winLen/2 && len(windows) > 0 {
				break
			}
			padded := make([]float64, winLen)
			copy(padded, pcm[off:])
			windows = append(windows, e.analyzeWindow(padded))
			break
		}
		windows = append(windows, e.analyzeWindow(pcm[off:end]))
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("audio yielded zero windows: %w", analysis.ErrCorruptInput)
	}

	return &AudioFeatures{
		Windows:         windows,
		SampleRate:      e.sampleRate,
		DurationSeconds: float64(len(pcm)) / float64(e.sampleRate),
	}, nil
}

func (e *AudioExtractor) analyzeWindow(pcm []float64) AudioWindow {
	w := AudioWindow{PCM: pcm}

	mean, variance := mfccStats(pcm, e.sampleRate)
	w.MFCC = mean
	w.MFCCVariance = variance

	w.Centroid, w.CentroidStd, w.Rolloff, w.RolloffStd = spectralStats(pcm, e.sampleRate)
	w.PhaseDiscontinuity = phaseDiscontinuityRate(pcm)
	return w
}

// decodeMono returns normalized mono samples at the extractor's rate.
func (e *AudioExtractor) decodeMono(ctx context.Context, data []byte) ([]float64, error) {
	if pcm, ok := e.decodeWAV(data); ok {
		return pcm, nil
	}
	converted, err := e.transcode(ctx, data)
	if err != nil {
		return nil, err
	}
	pcm, ok := e.decodeWAV(converted)
	if !ok {
		return nil, fmt.Errorf("transcoded audio undecodable: %w", analysis.ErrCorruptInput)
	}
	return pcm, nil
}

// decodeWAV handles the native path: a WAV already at the target rate.
func (e *AudioExtractor) decodeWAV(data []byte) ([]float64, bool) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, false
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil || buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, false
	}
	if buf.Format.SampleRate != e.sampleRate {
		return nil, false // resample via ffmpeg
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	ch := buf.Format.NumChannels
	if ch < 1 {
		ch = 1
	}
	out := make([]float64, 0, len(buf.Data)/ch)
	for i := 0; i+ch <= len(buf.Data); i += ch {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i+c])
		}
		out = append(out, sum/float64(ch)/scale)
	}
	return out, true
}

// transcode shells out to ffmpeg for anything that is not already a
// 16-bit WAV at the target rate (mp3, flac, m4a, ogg, resampling).
func (e *AudioExtractor) transcode(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "verimedia-audio-")
	if err != nil {
		return nil, fmt.Errorf("audio scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	out := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch input: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpegBinary,
		"-hide_banner", "-loglevel", "error",
		"-i", in,
		"-ac", "1",
		"-ar", strconv.Itoa(e.sampleRate),
		"-sample_fmt", "s16",
		out,
	)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audio transcode interrupted: %w", analysis.ErrCanceled)
		}
		return nil, fmt.Errorf("audio undecodable (ffmpeg: %v): %w", err, analysis.ErrCorruptInput)
	}
	return os.ReadFile(out)
}
