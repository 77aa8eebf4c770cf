package ai

import "context"

type Client interface {
	Explain(ctx context.Context, summary string) (string, error)
}
