package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/database"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// EvidenceToolset exposes the archived research evidence to the chat agent.
type EvidenceToolset struct {
	DB       *database.PostgresDB
	Archiver *archive.Archiver
}

func NewEvidenceToolset(db *database.PostgresDB, archiver *archive.Archiver) *EvidenceToolset {
	return &EvidenceToolset{
		DB:       db,
		Archiver: archiver,
	}
}

func (t *EvidenceToolset) Name() string {
	return "evidence_tools"
}

func (t *EvidenceToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchEvidenceArgs, SearchEvidenceResp](
		functiontool.Config{
			Name:        "search_evidence",
			Description: "Search the archived research evidence using semantic search, optionally scoped to one run.",
		},
		t.searchEvidenceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	findBySourceTool, err := functiontool.New[FindSourceArgs, FindSourceResp](
		functiontool.Config{
			Name:        "find_evidence_by_source",
			Description: "Find all archived evidence that came from a specific source URL.",
		},
		t.findEvidenceBySourceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_source tool: %w", err)
	}

	findByRunTool, err := functiontool.New[FindRunArgs, FindRunResp](
		functiontool.Config{
			Name:        "find_evidence_by_run",
			Description: "List all archived evidence chunks of one research run.",
		},
		t.findEvidenceByRunTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_run tool: %w", err)
	}

	return []tool.Tool{searchTool, findBySourceTool, findByRunTool}, nil
}

// --- Tool Implementations ---

type SearchEvidenceArgs struct {
	Query string `json:"query" description:"The search query"`
	RunID string `json:"runId,omitempty" description:"Optional research run ID to scope the search"`
	TopK  int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
}

type SearchEvidenceResp struct {
	Results string `json:"results"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) searchEvidenceTool(ctx tool.Context, args SearchEvidenceArgs) (SearchEvidenceResp, error) {
	return t.SearchEvidence(ctx, args)
}

// Public method using standard context
func (t *EvidenceToolset) SearchEvidence(ctx context.Context, args SearchEvidenceArgs) (SearchEvidenceResp, error) {
	if args.TopK == 0 {
		args.TopK = 5
	}

	slog.Info("Search evidence", "query", args.Query, "topK", args.TopK, "run_id", args.RunID)

	results, err := t.Archiver.Search(ctx, args.RunID, args.Query, args.TopK)
	if err != nil {
		return SearchEvidenceResp{}, fmt.Errorf("failed to search evidence: %w", err)
	}

	formatted := make([]string, 0, len(results))
	for _, hit := range results {
		formatted = append(formatted, formatChunk(hit.Chunk))
	}

	return SearchEvidenceResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type FindSourceArgs struct {
	Source string `json:"source" description:"The source URL to find evidence for"`
}

type FindSourceResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) findEvidenceBySourceTool(ctx tool.Context, args FindSourceArgs) (FindSourceResp, error) {
	return t.FindEvidenceBySource(ctx, args)
}

// Public method using standard context
func (t *EvidenceToolset) FindEvidenceBySource(ctx context.Context, args FindSourceArgs) (FindSourceResp, error) {
	store := vectorstore.NewEvidenceStore(t.DB.Pool)

	chunks, err := store.BySource(ctx, args.Source)
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to find evidence: %w", err)
	}

	contents := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}

	return FindSourceResp{Content: strings.Join(contents, "\n\n")}, nil
}

type FindRunArgs struct {
	RunID string `json:"runId" description:"The research run ID"`
}

type FindRunResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) findEvidenceByRunTool(ctx tool.Context, args FindRunArgs) (FindRunResp, error) {
	return t.FindEvidenceByRun(ctx, args)
}

// Public method using standard context
func (t *EvidenceToolset) FindEvidenceByRun(ctx context.Context, args FindRunArgs) (FindRunResp, error) {
	store := vectorstore.NewEvidenceStore(t.DB.Pool)

	chunks, err := store.ByRun(ctx, args.RunID)
	if err != nil {
		return FindRunResp{}, fmt.Errorf("failed to find evidence: %w", err)
	}

	formatted := make([]string, 0, len(chunks))
	for _, c := range chunks {
		formatted = append(formatted, formatChunk(c))
	}

	return FindRunResp{Content: strings.Join(formatted, "\n\n")}, nil
}

func formatChunk(c vectorstore.Chunk) string {
	source := c.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("[Source]: %s\n[Query]: %s\n[Content]: %s", source, c.Query, c.Content)
}
