package research

import (
	"context"
	"encoding/json"
	"fmt"
)

// evaluate judges whether the accumulated findings, across all rounds so
// far, answer the question. The number of suggested follow-up queries is not
// bounded here; the round budget alone limits further research. A failed
// evaluation is fatal to the run.
func (e *Engine) evaluate(ctx context.Context, question string, findings []Finding) (SufficiencyVerdict, error) {
	e.Logger.Info("Evaluating sufficiency", "findings", len(findings))

	var verdict SufficiencyVerdict

	system := reflectionSystemPrompt + "\n\n# Response Format: \n\n" + ReflectionSchema()
	input := buildReflectionInput(question, findings)

	err := e.generateStructured(ctx, e.ReasoningLLM, system, input, func(content string) error {
		verdict = SufficiencyVerdict{}
		if err := json.Unmarshal([]byte(content), &verdict); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		return nil
	})
	if err != nil {
		return SufficiencyVerdict{}, err
	}

	e.Logger.Info("Verdict reached", "sufficient", verdict.IsSufficient, "follow_ups", len(verdict.FollowUpQueries))
	return verdict, nil
}
