package provider

import (
	"context"
	"errors"

	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/provider/groq"
)

// Client represents different LLM providers
type Client string

const (
	Groq      Client = "groq"
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Message is one turn of a chat-completion prompt.
type Message = groq.Message

// Usage reports token consumption for a single generation call.
type Usage = groq.Usage

// Provider is the single text-generation capability the pipeline consumes.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, Usage, error)
}

// NewProvider creates an LLM client from configuration. Groq and OpenAI both
// speak the OpenAI chat-completions protocol and differ only in base URL.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key not set")
	}
	switch Client(cfg.Provider) {
	case Groq, OpenAI:
		return groq.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, float32(cfg.Temperature), cfg.MaxTokens, cfg.Timeout), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
