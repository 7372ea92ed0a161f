// Package llm adapts hosted language models to the text-analysis interface
// the analyst stage calls.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/pkg/anthropic"
	"github.com/sells-group/regintel/pkg/perplexity"
)

// TextAnalyzer sends one prompt and returns the model's text reply.
type TextAnalyzer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// systemPrompt frames every analysis call.
const systemPrompt = "You are a regulatory compliance analyst. " +
	"Answer with a single JSON object and no surrounding prose."

// temperature keeps extraction output stable between runs.
const temperature = 0.2

// New builds the analyzer selected by cfg.Analyst.Provider. It returns a nil
// analyzer, and no error, when the provider is "none" or its API key is not
// configured; callers then fall back to rule-based analysis.
func New(ctx context.Context, cfg *config.Config) (TextAnalyzer, error) {
	switch cfg.Analyst.Provider {
	case "", "anthropic":
		if cfg.Anthropic.Key == "" {
			return disabled("anthropic")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithMaxRetries(0))
		return NewAnthropic(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "gemini":
		if cfg.Gemini.Key == "" {
			return disabled("gemini")
		}
		g, err := NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.Model, "")
		if err != nil {
			return nil, err
		}
		return g, nil
	case "perplexity":
		if cfg.Perplexity.Key == "" {
			return disabled("perplexity")
		}
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		return NewPerplexity(client), nil
	case "none":
		return disabled("none")
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Analyst.Provider)
	}
}

func disabled(provider string) (TextAnalyzer, error) {
	zap.L().Warn("llm: text analysis disabled, using rule-based fallback", zap.String("provider", provider))
	return nil, nil
}
