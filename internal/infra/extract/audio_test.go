package extract

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

const testRate = 16000

// sineWAV renders a mono 16-bit WAV of the given duration.
func sineWAV(t *testing.T, freq float64, seconds float64) []byte {
	t.Helper()

	n := int(seconds * testRate)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		SourceBitDepth: 16,
		Data:           make([]int, n),
	}
	for i := 0; i < n; i++ {
		v := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
		buf.Data[i] = int(v * 32767)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestAudioExtractWindowing(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 30)

	// 2.6s: two full windows plus a trailing one that is over half
	// full and gets padded
	feats, err := e.Extract(context.Background(), sineWAV(t, 440, 2.6))
	require.NoError(t, err)

	assert.Len(t, feats.Windows, 3)
	assert.Equal(t, testRate, feats.SampleRate)
	assert.InDelta(t, 2.6, feats.DurationSeconds, 0.01)
	for _, w := range feats.Windows {
		assert.Len(t, w.PCM, testRate)
	}
}

func TestAudioExtractDropsShortTail(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 30)

	// trailing 0.3s is under half a window and is dropped
	feats, err := e.Extract(context.Background(), sineWAV(t, 440, 2.3))
	require.NoError(t, err)
	assert.Len(t, feats.Windows, 2)
}

func TestAudioExtractCapsDuration(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 3)

	feats, err := e.Extract(context.Background(), sineWAV(t, 440, 5))
	require.NoError(t, err)
	assert.Len(t, feats.Windows, 3)
	assert.InDelta(t, 3.0, feats.DurationSeconds, 0.01)
}

func TestAudioExtractDeterministic(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 30)
	data := sineWAV(t, 880, 1.5)

	a, err := e.Extract(context.Background(), data)
	require.NoError(t, err)
	b, err := e.Extract(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, b.Windows, len(a.Windows))
	for i := range a.Windows {
		assert.Equal(t, a.Windows[i].MFCC, b.Windows[i].MFCC)
		assert.Equal(t, a.Windows[i].Centroid, b.Windows[i].Centroid)
		assert.Equal(t, a.Windows[i].PhaseDiscontinuity, b.Windows[i].PhaseDiscontinuity)
	}
}

func TestAudioExtractGarbageBytes(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 30)

	_, err := e.Extract(context.Background(), []byte("not audio at all"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrCorruptInput))
}

func TestSpectralCentroidTracksTone(t *testing.T) {
	e := NewAudioExtractor(testRate, 1, 30)

	low, err := e.Extract(context.Background(), sineWAV(t, 500, 1))
	require.NoError(t, err)
	high, err := e.Extract(context.Background(), sineWAV(t, 4000, 1))
	require.NoError(t, err)

	assert.InDelta(t, 500, low.Windows[0].Centroid, 300)
	assert.InDelta(t, 4000, high.Windows[0].Centroid, 600)
	assert.Greater(t, high.Windows[0].Rolloff, low.Windows[0].Rolloff)
}

func TestPhaseDiscontinuityOnSplice(t *testing.T) {
	n := frameSize * 8
	smooth := make([]float64, n)
	spliced := make([]float64, n)
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * 1000 * float64(i) / testRate)
		smooth[i] = v
		if i >= n/2 {
			v = -v // hard phase flip at the midpoint
		}
		spliced[i] = v
	}

	assert.GreaterOrEqual(t, phaseDiscontinuityRate(spliced), phaseDiscontinuityRate(smooth))
	assert.InDelta(t, 0, phaseDiscontinuityRate(smooth), 0.05)
}

func TestDCT2ConstantInput(t *testing.T) {
	in := []float64{3, 3, 3, 3, 3, 3, 3, 3}
	out := dct2(in, 4)

	assert.Greater(t, out[0], 0.0)
	for k := 1; k < len(out); k++ {
		assert.InDelta(t, 0, out[k], 1e-9, "coefficient %d", k)
	}
}

func TestMelFilterbankShape(t *testing.T) {
	bank := melFilterbank(testRate, frameSize, numMel)

	require.Len(t, bank, numMel)
	for f, row := range bank {
		require.Len(t, row, frameSize/2+1)
		for _, w := range row {
			assert.GreaterOrEqual(t, w, 0.0, "filter %d", f)
			assert.LessOrEqual(t, w, 1.0, "filter %d", f)
		}
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, mean, 1e-9)
	assert.InDelta(t, 2, std, 1e-9)

	mean, std = meanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}
