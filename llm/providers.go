package llm

import "context"

// compatProvider wraps the shared OpenAI-compatible client as a Provider.
type compatProvider struct {
	base openAICompatClient
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

// NewOpenAICompat creates a generic OpenAI-compatible provider from an
// explicit base URL.
func NewOpenAICompat(cfg Config) Provider {
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}

// NewOllama creates a provider for a local Ollama server.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}

// NewLMStudio creates a provider for a local LM Studio server.
func NewLMStudio(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234"
	}
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}

// NewOpenAI creates a provider for the OpenAI API.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}

// NewGroq creates a provider for Groq's inference API.
func NewGroq(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api"
	}
	return &compatProvider{base: newOpenAICompatClient(cfg)}
}
