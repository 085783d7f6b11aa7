// Package summary produces per-item relevance summaries through an LLM
// gateway.
package summary

import "context"

// Gateway is the completion backend. Implementations return the raw model
// output for one prompt.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
