package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
)

type Service struct {
	DB       *database.PostgresDB
	Cfg      *config.Config
	Archiver *archive.Archiver
}

func NewService(db *database.PostgresDB, cfg *config.Config, archiver *archive.Archiver) *Service {
	return &Service{
		DB:       db,
		Cfg:      cfg,
		Archiver: archiver,
	}
}

type Run struct {
	ID        uuid.UUID       `json:"id"`
	Question  string          `json:"question"`
	Status    string          `json:"status"`
	Answer    *string         `json:"answer,omitempty"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	Rounds    int             `json:"rounds"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Config    json.RawMessage `json:"config"`
}

type CreateRunRequest struct {
	Question          string `json:"question"`
	InitialQueryCount int    `json:"initial_query_count,omitempty"`
	MaxRounds         int    `json:"max_rounds,omitempty"`
}

func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (*Run, error) {
	researchReq := research.Request{
		Question:          req.Question,
		InitialQueryCount: req.InitialQueryCount,
		MaxRounds:         req.MaxRounds,
		FastModel:         s.Cfg.FastModel,
		ReasoningModel:    s.Cfg.ReasoningModel,
	}
	if researchReq.InitialQueryCount <= 0 {
		researchReq.InitialQueryCount = s.Cfg.InitialQueryCount
	}
	if researchReq.MaxRounds <= 0 {
		researchReq.MaxRounds = s.Cfg.MaxRounds
	}

	configJSON, _ := json.Marshal(researchReq)

	runID := uuid.New()
	query := `
		INSERT INTO research_runs (id, question, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, question, status, rounds, created_at, updated_at
	`

	run := &Run{}
	err := s.DB.Pool.QueryRow(ctx, query, runID, req.Question, configJSON).Scan(
		&run.ID, &run.Question, &run.Status, &run.Rounds, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	// Start background worker
	go s.runWorker(run.ID, researchReq)

	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, question, status, answer, sources, rounds, created_at, updated_at, config
		FROM research_runs
		WHERE id = $1
	`
	run := &Run{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Question, &run.Status, &run.Answer, &run.Sources, &run.Rounds, &run.CreatedAt, &run.UpdatedAt, &run.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	query := `
		SELECT id, question, status, answer, sources, rounds, created_at, updated_at, config
		FROM research_runs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Question, &run.Status, &run.Answer, &run.Sources, &run.Rounds, &run.CreatedAt, &run.UpdatedAt, &run.Config); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetRunLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *Service) runWorker(runID uuid.UUID, req research.Request) {
	ctx := context.Background()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_runs SET status = 'running', updated_at = NOW() WHERE id = $1", runID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, runID))

	engine, err := s.buildEngine(ctx)
	if err != nil {
		s.failRun(ctx, runID, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}

	engine.Logger = dbLogger
	engine.OnProgress = func(evt research.Event) {
		dbLogger.Info("Progress", "type", string(evt.Type), "round", evt.Round,
			"finding_count", evt.FindingCount, "is_sufficient", evt.IsSufficient)
	}

	answer, state, err := engine.RunWithState(ctx, req)
	if err != nil {
		s.failRun(ctx, runID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	sourcesJSON, err := json.Marshal(answer.Sources)
	if err != nil {
		sourcesJSON = []byte("[]")
	}

	_, err = s.DB.Pool.Exec(ctx,
		"UPDATE research_runs SET status = 'completed', answer = $2, sources = $3, rounds = $4, updated_at = NOW() WHERE id = $1",
		runID, answer.Text, sourcesJSON, state.RoundCount)
	if err != nil {
		dbLogger.Error("Failed to save final answer to DB", "error", err)
	}

	// Archive evidence for later semantic search and follow-up chat.
	if s.Archiver != nil {
		archiver := *s.Archiver
		archiver.Logger = dbLogger
		if err := archiver.IndexRun(ctx, runID, state.AllFindings); err != nil {
			dbLogger.Error("Failed to archive evidence", "error", err)
		}
	}
}

func (s *Service) buildEngine(ctx context.Context) (*research.Engine, error) {
	fastLLM, err := clients.GoogleAI(ctx, s.Cfg.GoogleApiKey, s.Cfg.FastModel)
	if err != nil {
		return nil, err
	}
	reasoningLLM, err := clients.GoogleAI(ctx, s.Cfg.GoogleApiKey, s.Cfg.ReasoningModel)
	if err != nil {
		return nil, err
	}
	provider, err := search.FromConfig(s.Cfg)
	if err != nil {
		return nil, err
	}

	return research.NewEngine(research.Config{
		MaxResults:  s.Cfg.MaxResults,
		CallTimeout: time.Duration(s.Cfg.CallTimeoutSecs) * time.Second,
	}, fastLLM, reasoningLLM, provider), nil
}

func (s *Service) failRun(ctx context.Context, runID uuid.UUID, reason string) {
	dbLogger := slog.New(NewDBLogHandler(s.DB, runID))
	dbLogger.Error(reason)

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_runs SET status = 'failed', updated_at = NOW() WHERE id = $1", runID)
}
