package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API. The underlying client is created
// lazily on first use.
type GeminiBackend struct {
	apiKey string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiBackend(apiKey string) *GeminiBackend {
	return &GeminiBackend{apiKey: apiKey}
}

func (g *GeminiBackend) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

func (g *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", &Error{Type: ErrorTypeAuth, Model: req.Model, Err: err}
	}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		e := &Error{Type: Classify(err), Model: req.Model, Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			e.StatusCode = apiErr.Code
		}
		return "", e
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &Error{Type: ErrorTypeEmptyResponse, Model: req.Model, Err: errors.New("no text in response")}
	}
	return text, nil
}
