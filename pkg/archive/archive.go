// Package archive stores a completed run's findings in pgvector so they can
// be searched semantically afterwards, from the HTTP API or the evidence
// chat agent.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// Archiver chunks, embeds and stores finding texts.
type Archiver struct {
	DB       *database.PostgresDB
	Embedder *embeddings.Gemini
	Logger   *slog.Logger

	ChunkSize    int
	ChunkOverlap int
}

func NewArchiver(db *database.PostgresDB, embedder *embeddings.Gemini, chunkSize, chunkOverlap int) *Archiver {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 200
	}
	return &Archiver{
		DB:           db,
		Embedder:     embedder,
		Logger:       slog.Default(),
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// IndexRun archives every finding of a completed run. Findings are processed
// concurrently with a small cap; a failure on one finding is logged and
// skipped so the rest of the run still gets archived.
func (a *Archiver) IndexRun(ctx context.Context, runID uuid.UUID, findings []research.Finding) error {
	store := vectorstore.NewEvidenceStore(a.DB.Pool)
	if err := store.EnsureSchema(ctx, embeddings.Dimension); err != nil {
		return fmt.Errorf("failed to prepare evidence schema: %w", err)
	}

	split := splitter.New(a.ChunkSize, a.ChunkOverlap)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 3)

	for _, finding := range findings {
		if len(finding.Sources) == 0 {
			// Degraded finding, nothing worth archiving.
			continue
		}

		wg.Add(1)
		go func(f research.Finding) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			texts, err := split.Chunks(f.Text)
			if err != nil {
				a.Logger.Error("Failed to split finding", "query", f.SourceQuery.Text, "error", err)
				return
			}

			vectors, err := a.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				a.Logger.Error("Failed to embed finding", "query", f.SourceQuery.Text, "error", err)
				return
			}

			chunks := make([]vectorstore.Chunk, len(texts))
			for i, text := range texts {
				chunks[i] = vectorstore.Chunk{
					RunID:      runID.String(),
					Query:      f.SourceQuery.Text,
					QueryIndex: f.SourceQuery.Index,
					Source:     firstSourceURL(f),
					Content:    text,
					Embedding:  vectors[i],
				}
			}

			if err := store.Add(ctx, chunks); err != nil {
				a.Logger.Error("Failed to store finding chunks", "query", f.SourceQuery.Text, "error", err)
				return
			}

			a.Logger.Info("Archived finding", "query", f.SourceQuery.Text, "chunks", len(chunks))
		}(finding)
	}
	wg.Wait()

	return nil
}

// Search runs a semantic query over a run's archived evidence. An empty
// runID searches across all runs.
func (a *Archiver) Search(ctx context.Context, runID, query string, topK int) ([]vectorstore.ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	queryEmbedding, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	store := vectorstore.NewEvidenceStore(a.DB.Pool)
	return store.Search(ctx, queryEmbedding, topK, runID)
}

func firstSourceURL(f research.Finding) string {
	if len(f.Sources) == 0 {
		return ""
	}
	return f.Sources[0].URL
}
