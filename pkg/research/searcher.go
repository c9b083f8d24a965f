package research

import (
	"context"
	"fmt"
)

// SearchProvider executes one query against a web search backend.
// Implementations live in pkg/search; they may return zero results, which is
// a valid outcome, not an error.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

func noResultsText(query string) string {
	return fmt.Sprintf("No search results found for: %s", query)
}

// runSearchTask researches a single query: search, summarize, resolve
// citation markers. Capability failures degrade to an empty-sources Finding
// tagged with the error so the evaluator can see the evidence is absent; the
// task only reports an error upward when the batch context itself is done,
// which the orchestrator treats as fatal.
func (e *Engine) runSearchTask(ctx context.Context, q Query) (Finding, error) {
	searchCtx, cancel := context.WithTimeout(ctx, e.Config.CallTimeout)
	results, err := e.Search.Search(searchCtx, q.Text, e.Config.MaxResults)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Finding{}, ctx.Err()
		}
		e.Logger.Error("Search failed", "query", q.Text, "error", err)
		return Finding{
			SourceQuery: q,
			Sources:     []SearchResult{},
			Text:        fmt.Sprintf("%s (search failed: %v)", noResultsText(q.Text), err),
		}, nil
	}

	if len(results) == 0 {
		e.Logger.Info("No search results", "query", q.Text)
		return Finding{
			SourceQuery: q,
			Sources:     []SearchResult{},
			Text:        noResultsText(q.Text),
		}, nil
	}

	text, err := e.generateText(ctx, e.LLM, summarizerSystemPrompt, buildSummarizerInput(q.Text, results))
	if err != nil {
		if ctx.Err() != nil {
			return Finding{}, ctx.Err()
		}
		e.Logger.Error("Summarization failed", "query", q.Text, "error", err)
		return Finding{
			SourceQuery: q,
			Sources:     []SearchResult{},
			Text:        fmt.Sprintf("%s (summarization failed: %v)", noResultsText(q.Text), err),
		}, nil
	}

	return Finding{
		SourceQuery: q,
		Sources:     results,
		Text:        InsertCitationMarkers(text, results),
	}, nil
}
