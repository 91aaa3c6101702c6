package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider    string   // "openai" or "anthropic"
	APIKey      string   // Required: API key for the provider
	BaseURL     string   // Optional: custom API endpoint (any OpenAI-compatible gateway works)
	Model       string   // Model name (e.g., "gpt-4o-mini", "claude-sonnet-4-5-20250514")
	MaxTokens   int      // Default completion budget when a request does not set one
	Temperature *float64 // nil = model default
	MaxRetries  int      // SDK-level retries; 0 keeps a failed call failed
	Timeout     time.Duration
}

// Client is a single-shot text generator: prompt in, text out.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  *float64 // nil = client default, explicit 0 = deterministic
}

type Response struct {
	Text             string
	FinishReason     string // "stop", "length", ...
	PromptTokens     int
	CompletionTokens int
}

// New creates a Client for cfg.Provider.
// Defaults to OpenAI if no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// GenerateSchema reflects T into an inline JSON schema.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

func pickMaxTokens(req, fallback int) int {
	if req > 0 {
		return req
	}
	if fallback > 0 {
		return fallback
	}
	return 2048
}

func pickTemperature(req, fallback *float64) *float64 {
	if req != nil {
		return req
	}
	return fallback
}
