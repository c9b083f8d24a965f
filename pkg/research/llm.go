package research

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// generateStructured asks the model for JSON output and validates it with the
// provided function. A parse or validation failure counts as a failed attempt
// the same way a transport error does; up to 3 attempts are made with linear
// backoff. Each attempt carries its own timeout.
func (e *Engine) generateStructured(ctx context.Context, model llms.Model, system, input string, validator func(string) error) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			e.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.Config.RetryBackoff * time.Duration(i)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.Config.CallTimeout)
		resp, err := model.GenerateContent(callCtx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, input),
		}, llms.WithJSONMode())
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		if err := validator(resp.Choices[0].Content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return nil
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// generateText runs a single free-form generation with a per-call timeout.
func (e *Engine) generateText(ctx context.Context, model llms.Model, system, input string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.Config.CallTimeout)
	defer cancel()

	resp, err := model.GenerateContent(callCtx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}
