package aisvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

type gemini struct {
	apiKey  string
	model   string
	timeout time.Duration
}

func newGemini(apiKey, model string, timeout time.Duration) *gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &gemini{apiKey: apiKey, model: model, timeout: timeout}
}

func (g *gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", errors.Wrap(err, "creating genai client")
	}

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
	}
	resp, err := client.Models.GenerateContent(ctx, g.model, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", errors.Wrap(err, "gemini")
	}
	return resp.Text(), nil
}
