package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/pkg/perplexity"
)

// Perplexity analyzes text with a Perplexity Sonar model.
type Perplexity struct {
	client perplexity.Client
}

// NewPerplexity wraps a Perplexity client.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

// Complete sends prompt after the analyst system message.
func (p *Perplexity) Complete(ctx context.Context, prompt string) (string, error) {
	temp := temperature
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: perplexity complete")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.New("llm: perplexity returned no choices")
	}
	return text, nil
}
