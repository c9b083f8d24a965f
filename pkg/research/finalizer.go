package research

import (
	"context"
	"sort"
)

// finalize synthesizes the answer from all findings and builds the
// deduplicated source list in first-seen order. A failed synthesis call is
// fatal; there is no best-effort final answer.
func (e *Engine) finalize(ctx context.Context, question string, state *ResearchState) (FinalAnswer, error) {
	e.Logger.Info("Finalizing answer", "findings", len(state.AllFindings), "sources", len(state.AllSources))

	// Findings accumulate in completion order; the synthesis context follows
	// dispatch order. Indices are global, so one sort restores round order
	// and within-round order at once.
	ordered := make([]Finding, len(state.AllFindings))
	copy(ordered, state.AllFindings)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SourceQuery.Index < ordered[j].SourceQuery.Index
	})

	text, err := e.generateText(ctx, e.ReasoningLLM, answerSystemPrompt, buildAnswerInput(question, ordered))
	if err != nil {
		return FinalAnswer{}, err
	}

	return FinalAnswer{
		Text:    text,
		Sources: DedupeSources(state.AllSources),
	}, nil
}
