// Package heuristic holds the deterministic fallback analyzers. They
// are dependency-light, always available and combine a fixed set of
// named cues through documented linear formulas. Cue weights are
// defaults to calibrate against labeled data, not trained values.
package heuristic

import (
	"image"
	"math"
)

const (
	cueCompression     = "compression artifacts detected"
	cueNoiseVariance   = "high noise variance"
	cueColorShift      = "color inconsistencies detected"
	cueNoArtifacts     = "no obvious artifacts detected"
	cueTemporalBreaks  = "temporal inconsistencies across frames"
	imageCueThreshold  = 0.6
	colorCueThreshold  = 0.4
	noiseVarianceScale = 1000.0
)

// ImageResult carries the combined score and the cues that fired.
type ImageResult struct {
	Score            float64
	Cues             []string
	Artifacts        float64
	Noise            float64
	ColorConsistency float64
}

type Image struct{}

func NewImage() *Image { return &Image{} }

// Analyze scores one decoded image. Score = (artifacts + noise +
// (1 - color consistency)) / 3, each term in [0,1]. Deterministic for
// identical pixels.
func (h *Image) Analyze(img *image.RGBA) ImageResult {
	gray := grayPlane(img)

	res := ImageResult{
		Artifacts:        blockinessScore(gray),
		Noise:            noiseScore(gray),
		ColorConsistency: colorConsistency(img),
	}
	res.Score = (res.Artifacts + res.Noise + (1 - res.ColorConsistency)) / 3

	if res.Artifacts > imageCueThreshold {
		res.Cues = append(res.Cues, cueCompression)
	}
	if res.Noise > imageCueThreshold {
		res.Cues = append(res.Cues, cueNoiseVariance)
	}
	if res.ColorConsistency < colorCueThreshold {
		res.Cues = append(res.Cues, cueColorShift)
	}
	if len(res.Cues) == 0 {
		res.Cues = append(res.Cues, cueNoArtifacts)
	}
	return res
}

// grayPlane converts to a luma matrix, 0..255.
func grayPlane(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(img.Pix[o])
			g := float64(img.Pix[o+1])
			bl := float64(img.Pix[o+2])
			row[x] = 0.299*r + 0.587*g + 0.114*bl
		}
		out[y] = row
	}
	return out
}

// blockinessScore compares gradient energy across 8px block boundaries
// with the energy inside blocks. Heavy recompression leaves the
// boundary energy elevated.
func blockinessScore(gray [][]float64) float64 {
	h := len(gray)
	if h == 0 {
		return 0
	}
	w := len(gray[0])
	if w < 9 || h < 9 {
		return 0
	}

	var boundary, boundaryN, inner, innerN float64
	for y := 0; y < h; y++ {
		for x := 1; x < w; x++ {
			d := math.Abs(gray[y][x] - gray[y][x-1])
			if x%8 == 0 {
				boundary += d
				boundaryN++
			} else {
				inner += d
				innerN++
			}
		}
	}
	for y := 1; y < h; y++ {
		for x := 0; x < w; x++ {
			d := math.Abs(gray[y][x] - gray[y-1][x])
			if y%8 == 0 {
				boundary += d
				boundaryN++
			} else {
				inner += d
				innerN++
			}
		}
	}
	if boundaryN == 0 || innerN == 0 {
		return 0
	}
	ratio := (boundary / boundaryN) / (inner/innerN + 1e-6)
	return clamp01((ratio - 1) * 2)
}

// noiseScore estimates residual noise with a 3x3 mean filter and scores
// its variance.
func noiseScore(gray [][]float64) float64 {
	h := len(gray)
	if h < 3 {
		return 0
	}
	w := len(gray[0])
	if w < 3 {
		return 0
	}

	var sum, sumSq, n float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var acc float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					acc += gray[y+dy][x+dx]
				}
			}
			r := math.Abs(gray[y][x] - acc/9)
			sum += r
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	return clamp01(variance / noiseVarianceScale)
}

// colorConsistency measures how uniform saturation and value are across
// the image. Composites often stitch regions with mismatched color
// statistics.
func colorConsistency(img *image.RGBA) float64 {
	b := img.Bounds()
	var sats, vals []float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			o := img.PixOffset(x, y)
			s, v := satVal(img.Pix[o], img.Pix[o+1], img.Pix[o+2])
			sats = append(sats, s)
			vals = append(vals, v)
		}
	}
	_, sStd := meanStd(sats)
	_, vStd := meanStd(vals)
	return clamp01(1.0 / (1.0 + sStd/50 + vStd/50))
}

// satVal returns the HSV saturation and value channels scaled to 0..255.
func satVal(r, g, b uint8) (float64, float64) {
	maxc := math.Max(float64(r), math.Max(float64(g), float64(b)))
	minc := math.Min(float64(r), math.Min(float64(g), float64(b)))
	v := maxc
	if maxc == 0 {
		return 0, 0
	}
	return (maxc - minc) / maxc * 255, v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
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
	return mean, math.Sqrt(std / float64(len(vals)))
}
