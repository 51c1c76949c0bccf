package providers

import (
	"fmt"
	"time"
)

// Kind identifies the wire protocol a candidate model speaks.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindOllama    Kind = "ollama"
)

// Spec describes one entry in an intent's ordered candidate model chain.
type Spec struct {
	ID      string // candidate model id, as referenced by the router and trace log
	Kind    Kind
	Model   string // upstream model name
	APIKey  string
	BaseURL string // overrides the kind's default endpoint (OLLAMA_URL, SD_URL, ...)
	Timeout time.Duration
}

// New builds a Provider for a candidate spec. Unknown kinds are a
// configuration error surfaced at startup, not at dispatch time.
func New(spec Spec) (Provider, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	switch spec.Kind {
	case KindAnthropic:
		if spec.APIKey == "" {
			return nil, fmt.Errorf("providers: anthropic candidate %q missing API key", spec.ID)
		}
		if spec.BaseURL != "" {
			return NewAnthropicClientWithBaseURL(spec.APIKey, spec.Model, spec.BaseURL, timeout), nil
		}
		return NewAnthropicClient(spec.APIKey, spec.Model, timeout), nil

	case KindOpenAI:
		if spec.APIKey == "" {
			return nil, fmt.Errorf("providers: openai-compatible candidate %q missing API key", spec.ID)
		}
		return NewOpenAIClient(spec.APIKey, spec.Model, spec.BaseURL, timeout), nil

	case KindOllama:
		return NewOllamaClient(spec.Model, spec.BaseURL, timeout), nil

	default:
		return nil, fmt.Errorf("providers: unknown candidate kind %q for %q", spec.Kind, spec.ID)
	}
}
