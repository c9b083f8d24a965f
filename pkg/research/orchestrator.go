package research

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// EventType names a run state transition reported through OnProgress.
type EventType string

const (
	EventRoundStarted   EventType = "round_started"
	EventRoundCompleted EventType = "round_completed"
	EventVerdictReached EventType = "verdict_reached"
	EventFinalized      EventType = "finalized"
)

// Event is an observational progress notification. Consumers must not feed
// it back into control flow.
type Event struct {
	Type         EventType `json:"type"`
	Round        int       `json:"round"`
	FindingCount int       `json:"finding_count"`
	IsSufficient bool      `json:"is_sufficient,omitempty"`
}

// Engine drives the iterative research loop: plan queries, fan out one
// search task per query, evaluate sufficiency, loop or finalize.
type Engine struct {
	Config       Config
	LLM          llms.Model // query planning, summarization
	ReasoningLLM llms.Model // sufficiency evaluation, answer synthesis
	Search       SearchProvider
	Logger       *slog.Logger
	OnProgress   func(Event)
}

// NewEngine constructs an engine. If reasoning is nil, llm is used for
// evaluation and synthesis as well.
func NewEngine(cfg Config, llm llms.Model, reasoning llms.Model, search SearchProvider) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 90 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if reasoning == nil {
		reasoning = llm
	}
	return &Engine{
		Config:       cfg,
		LLM:          llm,
		ReasoningLLM: reasoning,
		Search:       search,
		Logger:       slog.Default(),
	}
}

func (e *Engine) emit(evt Event) {
	if e.OnProgress != nil {
		e.OnProgress(evt)
	}
}

// Run executes one research run to completion. It is synchronous from the
// caller's perspective; internally each round fans out one goroutine per
// query and joins the whole batch before evaluating. Fatal failures abort
// the run with a StageError naming the failed stage and the rounds completed
// before it.
func (e *Engine) Run(ctx context.Context, req Request) (FinalAnswer, error) {
	answer, _, err := e.RunWithState(ctx, req)
	return answer, err
}

// RunWithState is Run, but also returns the final evidence state so callers
// like the server can archive the findings of a completed run.
func (e *Engine) RunWithState(ctx context.Context, req Request) (FinalAnswer, *ResearchState, error) {
	if req.InitialQueryCount <= 0 {
		req.InitialQueryCount = 3
	}
	if req.MaxRounds <= 0 {
		req.MaxRounds = 2
	}

	e.Logger.Info("Starting research run", "question", req.Question,
		"initial_queries", req.InitialQueryCount, "max_rounds", req.MaxRounds)

	state := &ResearchState{}

	queries, err := e.planInitial(ctx, req.Question, req.InitialQueryCount)
	if err != nil {
		return FinalAnswer{}, state, &StageError{Stage: StagePlanning, Rounds: 0, Err: err}
	}

	for {
		e.emit(Event{Type: EventRoundStarted, Round: state.RoundCount + 1})

		findings, err := e.dispatch(ctx, queries)
		if err != nil {
			return FinalAnswer{}, state, &StageError{Stage: StageSearch, Rounds: state.RoundCount, Err: err}
		}

		// Findings arrive in completion order; each one carries its own
		// dispatch query, so no ordering is lost.
		for _, f := range findings {
			state.AllFindings = append(state.AllFindings, f)
			state.AllSources = append(state.AllSources, f.Sources...)
		}
		state.DispatchedQueryTotal += len(queries)
		state.RoundCount++

		e.emit(Event{Type: EventRoundCompleted, Round: state.RoundCount, FindingCount: len(state.AllFindings)})

		verdict, err := e.evaluate(ctx, req.Question, state.AllFindings)
		if err != nil {
			return FinalAnswer{}, state, &StageError{Stage: StageEvaluation, Rounds: state.RoundCount, Err: err}
		}

		e.emit(Event{Type: EventVerdictReached, Round: state.RoundCount,
			FindingCount: len(state.AllFindings), IsSufficient: verdict.IsSufficient})

		// Sufficiency wins over both the budget and any suggested
		// follow-ups; budget exhaustion finalizes rather than erroring.
		if verdict.IsSufficient || state.RoundCount >= req.MaxRounds {
			break
		}

		queries = planFollowup(verdict.FollowUpQueries, state.DispatchedQueryTotal)
		if len(queries) == 0 {
			e.Logger.Warn("Insufficient verdict with no follow-up queries, finalizing early")
			break
		}
		e.Logger.Info("Continuing research", "gap", verdict.KnowledgeGap, "follow_ups", len(queries))
	}

	answer, err := e.finalize(ctx, req.Question, state)
	if err != nil {
		return FinalAnswer{}, state, &StageError{Stage: StageSynthesis, Rounds: state.RoundCount, Err: err}
	}

	e.emit(Event{Type: EventFinalized, Round: state.RoundCount, FindingCount: len(state.AllFindings)})
	e.Logger.Info("Research run complete", "rounds", state.RoundCount, "sources", len(answer.Sources))
	return answer, state, nil
}

// dispatch launches one search task per query and blocks until the whole
// batch has completed. Tasks return findings by value; only this function
// touches the shared slice, under a mutex, so batches never race. If any
// task fails past its own degrade boundary the batch context is cancelled
// and the first error is returned.
func (e *Engine) dispatch(ctx context.Context, queries []Query) ([]Finding, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		findings []Finding
		firstErr error
	)

	for _, q := range queries {
		wg.Add(1)
		go func(q Query) {
			defer wg.Done()

			f, err := e.runSearchTask(batchCtx, q)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			findings = append(findings, f)
		}(q)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return findings, nil
}
