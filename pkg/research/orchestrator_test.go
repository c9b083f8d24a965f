package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// scriptedLLM routes generation calls by the leading phrase of the system
// prompt and replays canned responses in order.
type scriptedLLM struct {
	mu sync.Mutex

	planner    []string
	summarizer []string
	reflection []string
	writer     []string

	plannerIdx    int
	summarizerIdx int
	reflectionIdx int
	writerIdx     int
}

func (s *scriptedLLM) next(list []string, idx *int) (string, error) {
	if *idx >= len(list) {
		return "", errors.New("no scripted response available")
	}
	resp := list[*idx]
	*idx = *idx + 1
	return resp, nil
}

func (s *scriptedLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(messages) == 0 || len(messages[0].Parts) == 0 {
		return nil, errors.New("no system message")
	}
	system, ok := messages[0].Parts[0].(llms.TextContent)
	if !ok {
		return nil, errors.New("system message is not text")
	}

	var text string
	var err error
	switch {
	case strings.HasPrefix(system.Text, "You are a research query planner."):
		text, err = s.next(s.planner, &s.plannerIdx)
	case strings.HasPrefix(system.Text, "You are a research analyst."):
		text, err = s.next(s.summarizer, &s.summarizerIdx)
	case strings.HasPrefix(system.Text, "You are a research supervisor."):
		text, err = s.next(s.reflection, &s.reflectionIdx)
	case strings.HasPrefix(system.Text, "You are a research writer."):
		text, err = s.next(s.writer, &s.writerIdx)
	default:
		return nil, fmt.Errorf("unknown system prompt: %.40s", system.Text)
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

// fakeSearch records every query it sees and answers through fn.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string) ([]SearchResult, error)
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(query)
	}
	return []SearchResult{{Title: "Result for " + query, URL: "https://example.com/" + query, Snippet: "snippet"}}, nil
}

func (f *fakeSearch) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func newTestEngine(llm llms.Model, search SearchProvider) *Engine {
	return NewEngine(Config{
		MaxResults:   4,
		CallTimeout:  5 * time.Second,
		RetryBackoff: time.Millisecond,
	}, llm, nil, search)
}

func TestRunSufficientAfterOneRound(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["capital of France"]}`},
		summarizer: []string{"Paris is the capital of France [1]."},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`},
		writer:     []string{"The capital of France is Paris [Result for capital of France](https://example.com/capital of France)."},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	answer, state, err := engine.RunWithState(context.Background(), Request{
		Question:          "What is the capital of France?",
		InitialQueryCount: 1,
		MaxRounds:         3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.RoundCount != 1 {
		t.Errorf("expected 1 round, got %d", state.RoundCount)
	}
	if len(state.AllFindings) != 1 {
		t.Errorf("expected 1 finding, got %d", len(state.AllFindings))
	}
	if !strings.Contains(answer.Text, "Paris") {
		t.Errorf("answer missing expected content: %q", answer.Text)
	}
	if len(answer.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(answer.Sources))
	}
}

func TestRunBudgetExhaustionFinalizes(t *testing.T) {
	insufficient := `{"is_sufficient": false, "knowledge_gap": "need more", "follow_up_queries": ["follow-up"]}`
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1", "q2"]}`},
		summarizer: []string{"s1", "s2", "s3"},
		reflection: []string{insufficient, insufficient},
		writer:     []string{"best effort answer"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	answer, state, err := engine.RunWithState(context.Background(), Request{
		Question:          "Q",
		InitialQueryCount: 2,
		MaxRounds:         2,
	})
	if err != nil {
		t.Fatalf("budget exhaustion must finalize, not error: %v", err)
	}
	if state.RoundCount != 2 {
		t.Errorf("expected exactly 2 rounds, got %d", state.RoundCount)
	}
	if answer.Text != "best effort answer" {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
	// Round 1 dispatched q1+q2, round 2 the single follow-up.
	if len(state.AllFindings) != 3 {
		t.Errorf("expected 3 findings, got %d", len(state.AllFindings))
	}
	if state.DispatchedQueryTotal != 3 {
		t.Errorf("expected 3 dispatched queries, got %d", state.DispatchedQueryTotal)
	}
}

func TestRunSufficiencyDiscardsFollowUps(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1"]}`},
		summarizer: []string{"s1"},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": ["ignored-1", "ignored-2"]}`},
		writer:     []string{"done"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	_, state, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.RoundCount != 1 {
		t.Errorf("sufficient verdict must stop the loop, got %d rounds", state.RoundCount)
	}
	for _, q := range search.seen() {
		if strings.HasPrefix(q, "ignored") {
			t.Errorf("follow-up query %q dispatched despite sufficient verdict", q)
		}
	}
}

func TestRunMonotonicDispatchIndices(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1", "q2"]}`},
		summarizer: []string{"s1", "s2", "s3", "s4"},
		reflection: []string{
			`{"is_sufficient": false, "knowledge_gap": "gap", "follow_up_queries": ["f1", "f2"]}`,
			`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`,
		},
		writer: []string{"answer"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	_, state, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 2, MaxRounds: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	indices := make(map[int]bool)
	maxIndex := -1
	for _, f := range state.AllFindings {
		if indices[f.SourceQuery.Index] {
			t.Errorf("duplicate dispatch index %d", f.SourceQuery.Index)
		}
		indices[f.SourceQuery.Index] = true
		if f.SourceQuery.Index > maxIndex {
			maxIndex = f.SourceQuery.Index
		}
	}
	if len(indices) != 4 || maxIndex != 3 {
		t.Errorf("expected indices 0..3, got %v", indices)
	}
	if state.DispatchedQueryTotal != 4 {
		t.Errorf("expected 4 dispatched queries, got %d", state.DispatchedQueryTotal)
	}
}

func TestRunZeroResultsDegrades(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["obscure"]}`},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`},
		writer:     []string{"nothing found"},
	}
	search := &fakeSearch{fn: func(string) ([]SearchResult, error) {
		return nil, nil
	}}

	engine := newTestEngine(llm, search)

	answer, state, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 1})
	if err != nil {
		t.Fatalf("zero results must not abort the run: %v", err)
	}
	if len(state.AllFindings) != 1 {
		t.Fatalf("expected 1 placeholder finding, got %d", len(state.AllFindings))
	}
	f := state.AllFindings[0]
	if len(f.Sources) != 0 {
		t.Errorf("placeholder finding must carry no sources, got %d", len(f.Sources))
	}
	if !strings.Contains(f.Text, "No search results found for: obscure") {
		t.Errorf("unexpected placeholder text: %q", f.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected empty source list, got %d", len(answer.Sources))
	}
}

func TestRunSearchErrorDegrades(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["flaky"]}`},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`},
		writer:     []string{"answer without evidence"},
	}
	search := &fakeSearch{fn: func(string) ([]SearchResult, error) {
		return nil, errors.New("backend unavailable")
	}}

	engine := newTestEngine(llm, search)

	_, state, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 1})
	if err != nil {
		t.Fatalf("provider failure must degrade, not abort: %v", err)
	}
	if len(state.AllFindings) != 1 {
		t.Fatalf("expected 1 degraded finding, got %d", len(state.AllFindings))
	}
	f := state.AllFindings[0]
	if len(f.Sources) != 0 {
		t.Errorf("degraded finding must carry no sources, got %d", len(f.Sources))
	}
	if !strings.Contains(f.Text, "search failed") {
		t.Errorf("degraded finding must be tagged with the failure: %q", f.Text)
	}
}

// capturingLLM records the input handed to the answer writer.
type capturingLLM struct {
	*scriptedLLM
	captureMu   sync.Mutex
	writerInput string
}

func (c *capturingLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > 1 {
		system, sysOK := messages[0].Parts[0].(llms.TextContent)
		input, inOK := messages[1].Parts[0].(llms.TextContent)
		if sysOK && inOK && strings.HasPrefix(system.Text, "You are a research writer.") {
			c.captureMu.Lock()
			c.writerInput = input.Text
			c.captureMu.Unlock()
		}
	}
	return c.scriptedLLM.GenerateContent(ctx, messages, opts...)
}

func TestRunFinalizerContextInDispatchOrder(t *testing.T) {
	llm := &capturingLLM{scriptedLLM: &scriptedLLM{
		planner:    []string{`{"queries": ["alpha", "beta"]}`},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`},
		writer:     []string{"answer"},
	}}
	// First-dispatched query completes last.
	search := &fakeSearch{fn: func(query string) ([]SearchResult, error) {
		if query == "alpha" {
			time.Sleep(30 * time.Millisecond)
		}
		return nil, nil
	}}

	engine := newTestEngine(llm, search)

	if _, _, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 2, MaxRounds: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alphaPos := strings.Index(llm.writerInput, "No search results found for: alpha")
	betaPos := strings.Index(llm.writerInput, "No search results found for: beta")
	if alphaPos < 0 || betaPos < 0 {
		t.Fatalf("writer input missing finding texts: %q", llm.writerInput)
	}
	if alphaPos > betaPos {
		t.Errorf("synthesis context not in dispatch order: alpha at %d, beta at %d", alphaPos, betaPos)
	}
}

// cancellingSearch triggers a run cancellation on one query and records that
// its sibling observed the batch shutdown.
type cancellingSearch struct {
	cancel         context.CancelFunc
	siblingStopped chan struct{}
}

func (s *cancellingSearch) Search(ctx context.Context, query string, _ int) ([]SearchResult, error) {
	if query == "boom" {
		s.cancel()
		return nil, errors.New("backend crashed")
	}
	<-ctx.Done()
	close(s.siblingStopped)
	return nil, ctx.Err()
}

func TestRunCancellationAbortsBatch(t *testing.T) {
	llm := &scriptedLLM{
		planner: []string{`{"queries": ["boom", "slow"]}`},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	search := &cancellingSearch{cancel: cancel, siblingStopped: make(chan struct{})}

	engine := newTestEngine(llm, search)

	_, _, err := engine.RunWithState(ctx, Request{Question: "Q", InitialQueryCount: 2, MaxRounds: 2})
	if err == nil {
		t.Fatal("expected fatal error after cancellation")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StageSearch {
		t.Errorf("expected stage %q, got %q", StageSearch, stageErr.Stage)
	}
	if stageErr.Rounds != 0 {
		t.Errorf("expected 0 completed rounds, got %d", stageErr.Rounds)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation to surface through the error chain, got %v", err)
	}

	select {
	case <-search.siblingStopped:
	case <-time.After(time.Second):
		t.Error("sibling task did not observe the batch cancellation")
	}
}

func TestRunPlanningFailureFatal(t *testing.T) {
	llm := &scriptedLLM{
		planner: []string{"not json", "still not json", "{}"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	_, _, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 1})
	if err == nil {
		t.Fatal("expected planning failure")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StagePlanning {
		t.Errorf("expected stage %q, got %q", StagePlanning, stageErr.Stage)
	}
	if stageErr.Rounds != 0 {
		t.Errorf("expected 0 completed rounds, got %d", stageErr.Rounds)
	}
	if len(search.seen()) != 0 {
		t.Errorf("no queries should be dispatched after a planning failure")
	}
}

func TestRunEvaluationFailureFatal(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1"]}`},
		summarizer: []string{"s1"},
		reflection: []string{"garbage", "garbage", "garbage"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	_, _, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 2})
	if err == nil {
		t.Fatal("expected evaluation failure")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StageEvaluation {
		t.Errorf("expected stage %q, got %q", StageEvaluation, stageErr.Stage)
	}
	if stageErr.Rounds != 1 {
		t.Errorf("expected 1 completed round, got %d", stageErr.Rounds)
	}
}

func TestRunEmptyFollowUpsFinalizesEarly(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1"]}`},
		summarizer: []string{"s1"},
		reflection: []string{`{"is_sufficient": false, "knowledge_gap": "gap", "follow_up_queries": []}`},
		writer:     []string{"answer"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	answer, state, err := engine.RunWithState(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.RoundCount != 1 {
		t.Errorf("expected loop to end after 1 round, got %d", state.RoundCount)
	}
	if answer.Text != "answer" {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
}

func TestRunEmitsProgressEvents(t *testing.T) {
	llm := &scriptedLLM{
		planner:    []string{`{"queries": ["q1"]}`},
		summarizer: []string{"s1"},
		reflection: []string{`{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`},
		writer:     []string{"answer"},
	}
	search := &fakeSearch{}

	engine := newTestEngine(llm, search)

	var events []EventType
	engine.OnProgress = func(evt Event) {
		events = append(events, evt.Type)
	}

	if _, err := engine.Run(context.Background(), Request{Question: "Q", InitialQueryCount: 1, MaxRounds: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []EventType{EventRoundStarted, EventRoundCompleted, EventVerdictReached, EventFinalized}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i, et := range want {
		if events[i] != et {
			t.Errorf("event %d: expected %q, got %q", i, et, events[i])
		}
	}
}

func TestPlanInitialTruncatesOverDelivery(t *testing.T) {
	llm := &scriptedLLM{
		planner: []string{`{"queries": ["a", "b", "c", "d", "e"]}`},
	}

	engine := newTestEngine(llm, &fakeSearch{})

	queries, err := engine.planInitial(context.Background(), "Q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 3 {
		t.Fatalf("expected truncation to 3 queries, got %d", len(queries))
	}
	for i, q := range queries {
		if q.Index != i {
			t.Errorf("query %d has index %d", i, q.Index)
		}
	}
}

func TestPlanFollowupContinuesIndices(t *testing.T) {
	queries := planFollowup([]string{"f1", "f2"}, 3)
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].Index != 3 || queries[1].Index != 4 {
		t.Errorf("expected indices 3 and 4, got %d and %d", queries[0].Index, queries[1].Index)
	}
}

func TestGenerateStructuredRetriesThenSucceeds(t *testing.T) {
	llm := &scriptedLLM{
		planner: []string{"bad", `{"queries": ["ok"]}`},
	}

	engine := newTestEngine(llm, &fakeSearch{})

	queries, err := engine.planInitial(context.Background(), "Q", 1)
	if err != nil {
		t.Fatalf("expected success on second attempt: %v", err)
	}
	if len(queries) != 1 || queries[0].Text != "ok" {
		t.Errorf("unexpected queries: %v", queries)
	}
}
