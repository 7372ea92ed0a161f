package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/pkg/anthropic"
)

// Anthropic analyzes text with Claude.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Complete sends prompt as a single user turn.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	temp := temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic complete")
	}
	resp.Usage.Log(a.model, "analysis")

	text := resp.Text()
	if text == "" {
		return "", eris.Errorf("llm: anthropic returned no text (stop reason %q)", resp.StopReason)
	}
	return text, nil
}
