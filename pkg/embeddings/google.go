// Package embeddings turns evidence text into vectors with the Gemini
// embedding API.
package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Dimension is the output dimensionality requested from the embedding
// model. The evidence table schema depends on it.
const Dimension = 1536

// Gemini embeds text through the genai API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Embed returns the vector for a single text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(Dimension)
	res, err := g.client.Models.EmbedContent(ctx, g.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: text}}},
	}, &genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return res.Embeddings[0].Values, nil
}

// EmbedBatch embeds texts one at a time to stay within batch limits.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := g.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
