package llm

import "context"

// Client is a minimal LLM interface to allow pluggable providers.
// Answer generates a grounded response to the question from the assembled
// context of one organization's documents.
type Client interface {
	Answer(ctx context.Context, orgID, question, contextText string) (string, float32, error)
}
