package extract

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Short-time analysis parameters shared by the spectral features.
const (
	frameSize = 512
	frameHop  = 256
	numMel    = 26
	numMFCC   = 13
)

func hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// powerSpectrum returns the one-sided power spectrum of one frame.
func powerSpectrum(frame, window []float64) []float64 {
	buf := make([]float64, len(frame))
	for i := range frame {
		buf[i] = frame[i] * window[i]
	}
	spec := fft.FFTReal(buf)
	half := len(frame)/2 + 1
	out := make([]float64, half)
	for i := 0; i < half; i++ {
		m := cmplx.Abs(spec[i])
		out[i] = m * m / float64(len(frame))
	}
	return out
}

func hzToMel(hz float64) float64  { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterbank builds triangular filters over the one-sided spectrum.
func melFilterbank(sampleRate, fftSize, filters int) [][]float64 {
	half := fftSize/2 + 1
	low := hzToMel(0)
	high := hzToMel(float64(sampleRate) / 2)

	points := make([]int, filters+2)
	for i := range points {
		mel := low + (high-low)*float64(i)/float64(filters+1)
		hz := melToHz(mel)
		points[i] = int(math.Floor((float64(fftSize) + 1) * hz / float64(sampleRate)))
		if points[i] > half-1 {
			points[i] = half - 1
		}
	}

	bank := make([][]float64, filters)
	for f := 0; f < filters; f++ {
		row := make([]float64, half)
		l, c, r := points[f], points[f+1], points[f+2]
		for k := l; k < c && c > l; k++ {
			row[k] = float64(k-l) / float64(c-l)
		}
		for k := c; k <= r && r > c; k++ {
			row[k] = float64(r-k) / float64(r-c)
		}
		bank[f] = row
	}
	return bank
}

// dct2 computes the first n coefficients of an orthonormal DCT-II.
func dct2(in []float64, n int) []float64 {
	out := make([]float64, n)
	N := float64(len(in))
	for k := 0; k < n; k++ {
		var sum float64
		for i := range in {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/N)
		}
		scale := math.Sqrt(2 / N)
		if k == 0 {
			scale = math.Sqrt(1 / N)
		}
		out[k] = scale * sum
	}
	return out
}

// mfccStats returns the per-coefficient mean over frames and the mean
// per-coefficient variance, the signal the heuristic reads for codec
// artifacts.
func mfccStats(pcm []float64, sampleRate int) ([]float64, float64) {
	window := hamming(frameSize)
	bank := melFilterbank(sampleRate, frameSize, numMel)

	var frames [][]float64
	for off := 0; off+frameSize <= len(pcm); off += frameHop {
		ps := powerSpectrum(pcm[off:off+frameSize], window)
		energies := make([]float64, numMel)
		for f := range bank {
			var sum float64
			for k, w := range bank[f] {
				if w != 0 {
					sum += w * ps[k]
				}
			}
			energies[f] = math.Log(sum + 1e-10)
		}
		frames = append(frames, dct2(energies, numMFCC))
	}
	if len(frames) == 0 {
		return make([]float64, numMFCC), 0
	}

	mean := make([]float64, numMFCC)
	for _, fr := range frames {
		for i, v := range fr {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(frames))
	}

	var varSum float64
	for i := 0; i < numMFCC; i++ {
		var v float64
		for _, fr := range frames {
			d := fr[i] - mean[i]
			v += d * d
		}
		varSum += v / float64(len(frames))
	}
	return mean, varSum / numMFCC
}

// spectralStats returns mean and std of the spectral centroid and the
// 85% rolloff across frames, both in Hz.
func spectralStats(pcm []float64, sampleRate int) (centroid, centroidStd, rolloff, rolloffStd float64) {
	window := hamming(frameSize)
	binHz := float64(sampleRate) / frameSize

	var centroids, rolloffs []float64
	for off := 0; off+frameSize <= len(pcm); off += frameHop {
		ps := powerSpectrum(pcm[off:off+frameSize], window)

		var total, weighted float64
		for k, p := range ps {
			total += p
			weighted += p * float64(k) * binHz
		}
		if total <= 1e-12 {
			continue
		}
		centroids = append(centroids, weighted/total)

		target := 0.85 * total
		var acc float64
		roll := float64(len(ps)-1) * binHz
		for k, p := range ps {
			acc += p
			if acc >= target {
				roll = float64(k) * binHz
				break
			}
		}
		rolloffs = append(rolloffs, roll)
	}

	centroid, centroidStd = meanStd(centroids)
	rolloff, rolloffStd = meanStd(rolloffs)
	return
}

// phaseDiscontinuityRate measures jumps in the instantaneous phase of
// the analytic signal. Spliced or vocoded audio tends to show abrupt
// phase breaks that natural recordings do not.
func phaseDiscontinuityRate(pcm []float64) float64 {
	n := len(pcm)
	if n < 4 {
		return 0
	}

	// analytic signal via the frequency domain
	spec := fft.FFTReal(pcm)
	for i := 1; i < (n+1)/2; i++ {
		spec[i] *= 2
	}
	for i := n/2 + 1; i < n; i++ {
		spec[i] = 0
	}
	analytic := fft.IFFT(spec)

	prev := cmplx.Phase(analytic[0])
	unwrapOffset := 0.0
	prevUnwrapped := prev
	jumps := 0
	for i := 1; i < n; i++ {
		p := cmplx.Phase(analytic[i])
		d := p - prev
		if d > math.Pi {
			unwrapOffset -= 2 * math.Pi
		} else if d < -math.Pi {
			unwrapOffset += 2 * math.Pi
		}
		unwrapped := p + unwrapOffset
		if math.Abs(unwrapped-prevUnwrapped) > math.Pi/2 {
			jumps++
		}
		prev = p
		prevUnwrapped = unwrapped
	}
	return float64(jumps) / float64(n-1)
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(vals)))
	return
}
