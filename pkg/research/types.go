package research

import (
	"time"
)

// Request describes a single research run. It is created once per run and
// never mutated. The model names are carried for bookkeeping and handed to
// the entrypoint that constructs the LLM clients; the engine itself never
// interprets them.
type Request struct {
	Question          string `json:"question"`
	InitialQueryCount int    `json:"initial_query_count"`
	MaxRounds         int    `json:"max_rounds"`
	FastModel         string `json:"fast_model,omitempty"`
	ReasoningModel    string `json:"reasoning_model,omitempty"`
}

// Config holds runtime configuration for the engine.
type Config struct {
	// MaxResults is the number of search results requested per query.
	// Providers clamp this to their own limit.
	MaxResults int
	// CallTimeout bounds each external capability call (search, summarize,
	// evaluate, synthesize) independently.
	CallTimeout time.Duration
	// RetryBackoff is the base delay between structured-output retries.
	RetryBackoff time.Duration
}

// Query is one search query together with its dispatch index. Indices are
// assigned sequentially across the whole run and never reused.
type Query struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// SearchResult is a single record returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Finding is the synthesized, citation-annotated outcome of researching one
// query. A degraded task still produces a well-formed Finding with empty
// sources and a placeholder text.
type Finding struct {
	SourceQuery Query          `json:"source_query"`
	Sources     []SearchResult `json:"sources"`
	Text        string         `json:"text"`
}

// ResearchState accumulates evidence across rounds. It is owned by the
// engine's run loop and only ever mutated between batches, so it needs no
// locking.
type ResearchState struct {
	AllFindings          []Finding      `json:"all_findings"`
	AllSources           []SearchResult `json:"all_sources"`
	RoundCount           int            `json:"round_count"`
	DispatchedQueryTotal int            `json:"dispatched_query_total"`
}

// SufficiencyVerdict is the evaluator's judgment over all findings so far.
type SufficiencyVerdict struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// FinalAnswer is the terminal artifact of a run: the synthesized answer and
// the deduplicated source list in first-seen order.
type FinalAnswer struct {
	Text    string         `json:"text"`
	Sources []SearchResult `json:"sources"`
}
