package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAI builds a langchaingo client for the given Gemini model. The API
// key and model name come from explicit configuration; this package never
// reads the environment itself.
//
// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
func GoogleAI(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google api key is empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name is empty")
	}

	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}

	return llm, nil
}
