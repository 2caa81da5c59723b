package llm

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/errors"
)

// NewClient builds the adapter for the configured backend. API keys for the
// direct-API backends come from the environment.
func NewClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Client, error) {
	switch cfg.Backend {
	case config.BackendBedrock:
		return NewBedrockClient(ctx, cfg, log)
	case config.BackendAnthropic:
		return NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), cfg, log)
	case config.BackendOpenAI:
		return NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), cfg, log)
	case config.BackendGemini:
		return NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY"), cfg, log)
	}
	return nil, errors.New("unknown backend %q", cfg.Backend)
}
