package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

const ffmpegBinary = "ffmpeg"

// VideoExtractor samples frames at a uniform temporal stride and runs
// each sampled frame through the image extractor. Container decoding is
// delegated to ffmpeg; pure-Go demuxing of every container in the wild
// is not a fight worth having.
type VideoExtractor struct {
	images    *ImageExtractor
	frameRate int
	maxFrames int
}

func NewVideoExtractor(images *ImageExtractor, frameRate, maxFrames int) *VideoExtractor {
	return &VideoExtractor{images: images, frameRate: frameRate, maxFrames: maxFrames}
}

// Extract writes the upload to a scratch file, samples JPEG frames and
// extracts features per frame. Zero decodable frames is corrupt input.
func (e *VideoExtractor) Extract(ctx context.Context, data []byte) ([]*ImageFeatures, error) {
	dir, err := os.MkdirTemp("", "verimedia-frames-")
	if err != nil {
		return nil, fmt.Errorf("frame scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch input: %w", err)
	}

	pattern := filepath.Join(dir, "frame_%04d.jpg")
	cmd := exec.CommandContext(ctx, ffmpegBinary,
		"-hide_banner", "-loglevel", "error",
		"-i", in,
		"-vf", fmt.Sprintf("fps=%d", e.frameRate),
		"-frames:v", strconv.Itoa(e.maxFrames),
		"-q:v", "2",
		pattern,
	)
	runErr := cmd.Run()

	frames, globErr := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if globErr != nil {
		return nil, globErr
	}
	sort.Strings(frames)

	if len(frames) == 0 {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("frame sampling interrupted: %w", analysis.ErrCanceled)
		}
		return nil, fmt.Errorf("no decodable frames (ffmpeg: %v): %w", runErr, analysis.ErrCorruptInput)
	}

	out := make([]*ImageFeatures, 0, len(frames))
	for _, fp := range frames {
		raw, err := os.ReadFile(fp)
		if err != nil {
			continue
		}
		feats, err := e.images.Extract(raw)
		if err != nil {
			// one bad frame does not sink the video
			continue
		}
		out = append(out, feats)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no decodable frames: %w", analysis.ErrCorruptInput)
	}
	return out, nil
}
