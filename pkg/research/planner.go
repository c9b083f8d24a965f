package research

import (
	"context"
	"encoding/json"
	"fmt"
)

// planInitial asks the model for up to count distinct search queries for the
// question. A shorter list than requested is accepted as-is; an empty or
// malformed response is a planning failure, which is fatal to the run.
func (e *Engine) planInitial(ctx context.Context, question string, count int) ([]Query, error) {
	e.Logger.Info("Planning initial queries", "count", count)

	type queryResponse struct {
		Queries []string `json:"queries"`
	}
	var resp queryResponse

	system := queryWriterSystemPrompt + "\n\n# Response Format: \n\n" + QueryListSchema()
	input := buildQueryWriterInput(question, count)

	err := e.generateStructured(ctx, e.LLM, system, input, func(content string) error {
		resp = queryResponse{}
		if err := json.Unmarshal([]byte(content), &resp); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		if len(resp.Queries) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Queries) > count {
		resp.Queries = resp.Queries[:count]
	}

	queries := make([]Query, 0, len(resp.Queries))
	for i, text := range resp.Queries {
		queries = append(queries, Query{Text: text, Index: i})
	}

	e.Logger.Info("Generated queries", "queries", resp.Queries)
	return queries, nil
}

// planFollowup wraps the evaluator's suggested follow-up queries, continuing
// the global dispatch index at nextIndex. It makes no model call.
func planFollowup(followUps []string, nextIndex int) []Query {
	queries := make([]Query, 0, len(followUps))
	for i, text := range followUps {
		queries = append(queries, Query{Text: text, Index: nextIndex + i})
	}
	return queries
}
