package workers

import (
	"context"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// Analyst generates the narrative commentary of deal documents. The
// built-in workers are fully deterministic without one; plugging an
// Analyst (an LLM-backed implementation, typically) enriches the rendered
// documents but never changes the orchestration contract: artifact
// payloads, routing, and commits are identical with or without it.
type Analyst interface {
	// Narrate returns prose commentary for a stage's payload. An empty
	// string means nothing to add.
	Narrate(ctx context.Context, stage deal.StageID, payload map[string]any) (string, error)
}

// narrate appends analyst commentary to a rendered document. A nil
// analyst is a no-op.
func narrate(ctx context.Context, analyst Analyst, stage deal.StageID, payload map[string]any, content string) (string, error) {
	if analyst == nil {
		return content, nil
	}
	commentary, err := analyst.Narrate(ctx, stage, payload)
	if err != nil {
		return "", err
	}
	if commentary == "" {
		return content, nil
	}
	return content + "\n## Analyst Commentary\n" + commentary + "\n", nil
}
