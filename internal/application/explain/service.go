// Package explain turns a stored verdict into a plain-language
// explanation via an LLM. Optional; the pipeline never depends on it.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/bramasta/verimedia/internal/domain/ai"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
)

type Service struct {
	Client ai.Client
	Repo   domain.Repository
}

func NewService(client ai.Client, repo domain.Repository) *Service {
	return &Service{Client: client, Repo: repo}
}

// Explain fetches the completed result and asks the model to narrate
// the cues for a non-technical reader.
func (s *Service) Explain(ctx context.Context, id domain.ID) (string, error) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.State != domain.StateCompleted || job.Result == nil {
		return "", fmt.Errorf("job %s has no result to explain", id)
	}
	return s.Client.Explain(ctx, summarize(job))
}

func summarize(j *domain.Job) string {
	r := j.Result
	verdict := "authentic"
	if r.IsFake {
		verdict = "manipulated"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "modality: %s\nverdict: likely %s\nconfidence: %.2f\nanalyzer: %s\n",
		j.Modality, verdict, r.Confidence, r.ModelUsed)
	if len(r.Metadata.Cues) > 0 {
		fmt.Fprintf(&b, "cues: %s\n", strings.Join(r.Metadata.Cues, "; "))
	}
	if r.Metadata.FramesAnalyzed > 0 {
		fmt.Fprintf(&b, "frames analyzed: %d\n", r.Metadata.FramesAnalyzed)
	}
	return b.String()
}
