package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Gemini analyzes text with Google Gemini and asks for a JSON response.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini analyzer. baseURL overrides the API endpoint
// and is empty outside tests.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, eris.New("llm: gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create gemini client")
	}
	return &Gemini{client: client, model: model}, nil
}

// Complete sends prompt with the analyst system instruction.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: gemini generate content")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.New("llm: gemini returned no text")
	}
	return text, nil
}
