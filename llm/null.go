package llm

import "context"

// nullProvider answers every chat request with an empty JSON object, so
// downstream extraction deterministically yields zero triples. Used in tests
// and in deployments that run Tiers A and B only.
type nullProvider struct{}

// NewNull creates the no-op provider.
func NewNull() Provider {
	return nullProvider{}
}

func (nullProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{
		Content:      "{}",
		Model:        "null",
		FinishReason: "stop",
	}, nil
}
