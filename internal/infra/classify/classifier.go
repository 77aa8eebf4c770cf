// Package classify places an upload in one of the supported
// modalities. Content sniffing wins over the declared type so a
// mislabeled upload still lands on the right extractor.
package classify

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Classify sniffs the byte sample first and only consults the declared
// MIME type and extension when sniffing is inconclusive.
func (c *Classifier) Classify(declaredMIME, filename string, sample []byte) (analysis.Modality, error) {
	if len(sample) > 0 {
		detected := mimetype.Detect(sample)
		if m, ok := modalityFromMIME(detected.String()); ok {
			return m, nil
		}
		// Sniffing saw real content of another kind; the declared type
		// does not override it.
		if !isGeneric(detected.String()) {
			return "", fmt.Errorf("classify: detected %s: %w", detected.String(), analysis.ErrUnsupportedMediaType)
		}
	}
	if m, ok := modalityFromMIME(declaredMIME); ok {
		return m, nil
	}
	if ext := filepath.Ext(filename); ext != "" {
		if m, ok := modalityFromMIME(mime.TypeByExtension(ext)); ok {
			return m, nil
		}
	}
	return "", fmt.Errorf("classify: %q gave no usable type: %w", declaredMIME, analysis.ErrUnsupportedMediaType)
}

// QuickReject is the synchronous submission-time check. It only rejects
// when the declared type is decisively outside {image, video, audio};
// anything ambiguous is left for content sniffing inside the job.
func (c *Classifier) QuickReject(declaredMIME string) error {
	if declaredMIME == "" || isGeneric(declaredMIME) {
		return nil
	}
	if _, ok := modalityFromMIME(declaredMIME); !ok {
		return fmt.Errorf("declared type %q: %w", declaredMIME, analysis.ErrUnsupportedMediaType)
	}
	return nil
}

func modalityFromMIME(mt string) (analysis.Modality, bool) {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return analysis.ModalityImage, true
	case strings.HasPrefix(mt, "video/"):
		return analysis.ModalityVideo, true
	case strings.HasPrefix(mt, "audio/"), mt == "application/ogg":
		return analysis.ModalityAudio, true
	}
	return "", false
}

func isGeneric(mt string) bool {
	switch mt {
	case "", "application/octet-stream", "text/plain", "text/plain; charset=utf-8":
		return true
	}
	return false
}
