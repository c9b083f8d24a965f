// Package vectorstore persists embedded research evidence in Postgres with
// pgvector and answers similarity queries over it.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const evidenceTable = "research_evidence"

// Chunk is one embedded piece of evidence from a research run.
type Chunk struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Query      string    `json:"query"`
	QueryIndex int       `json:"query_index"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a similarity search hit. Score is cosine similarity.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// EvidenceStore reads and writes evidence chunks.
type EvidenceStore struct {
	pool *pgxpool.Pool
}

func NewEvidenceStore(pool *pgxpool.Pool) *EvidenceStore {
	return &EvidenceStore{pool: pool}
}

// EnsureSchema installs the pgvector extension and creates the evidence
// table and its indexes.
func (es *EvidenceStore) EnsureSchema(ctx context.Context, dimension int) error {
	if _, err := es.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to install vector extension: %w", err)
	}

	tableQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			run_id UUID NOT NULL,
			query TEXT NOT NULL,
			query_index INT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, evidenceTable, dimension)
	if _, err := es.pool.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("failed to create %s table: %w", evidenceTable, err)
	}

	if _, err := es.pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s(run_id)", evidenceTable, evidenceTable)); err != nil {
		return fmt.Errorf("failed to create run index: %w", err)
	}

	// HNSW supports up to 2000 dimensions. Above that we skip the index and
	// rely on exact search (slower but works).
	if dimension <= 2000 {
		if _, err := es.pool.Exec(ctx, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)",
			evidenceTable, evidenceTable)); err != nil {
			return fmt.Errorf("failed to create embedding index: %w", err)
		}
	}

	return nil
}

// Add inserts chunks in a single batch.
func (es *EvidenceStore) Add(ctx context.Context, chunks []Chunk) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, query, query_index, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evidenceTable)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(query, chunk.RunID, chunk.Query, chunk.QueryIndex,
			chunk.Source, chunk.Content, pgvector.NewVector(chunk.Embedding))
	}

	br := es.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert evidence chunk: %w", err)
		}
	}

	return nil
}

// Search returns the topK most similar chunks. An empty runID searches
// across all runs.
func (es *EvidenceStore) Search(ctx context.Context, queryEmbedding []float32, topK int, runID string) ([]ScoredChunk, error) {
	embedding := pgvector.NewVector(queryEmbedding)

	var rows pgx.Rows
	var err error
	if runID != "" {
		query := fmt.Sprintf(`
			SELECT id, run_id, query, query_index, source, content, 1 - (embedding <=> $1) AS similarity
			FROM %s
			WHERE run_id = $2
			ORDER BY embedding <=> $1
			LIMIT $3
		`, evidenceTable)
		rows, err = es.pool.Query(ctx, query, embedding, runID, topK)
	} else {
		query := fmt.Sprintf(`
			SELECT id, run_id, query, query_index, source, content, 1 - (embedding <=> $1) AS similarity
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2
		`, evidenceTable)
		rows, err = es.pool.Query(ctx, query, embedding, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.RunID, &sc.Chunk.Query,
			&sc.Chunk.QueryIndex, &sc.Chunk.Source, &sc.Chunk.Content, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// BySource returns every chunk that came from one source URL.
func (es *EvidenceStore) BySource(ctx context.Context, source string) ([]Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, query, query_index, source, content
		FROM %s
		WHERE source = $1
		ORDER BY created_at
	`, evidenceTable)
	return es.queryChunks(ctx, query, source)
}

// ByRun returns every chunk of one run, in dispatch order.
func (es *EvidenceStore) ByRun(ctx context.Context, runID string) ([]Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, query, query_index, source, content
		FROM %s
		WHERE run_id = $1
		ORDER BY query_index, created_at
	`, evidenceTable)
	return es.queryChunks(ctx, query, runID)
}

func (es *EvidenceStore) queryChunks(ctx context.Context, query string, args ...interface{}) ([]Chunk, error) {
	rows, err := es.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.RunID, &c.Query, &c.QueryIndex, &c.Source, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
