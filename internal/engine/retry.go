package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tatianab/dicetale/internal/llm"
)

// ErrAborted is returned when a request is given up on, either because
// the attempts ran out or because Confirm declined another try.
var ErrAborted = errors.New("request aborted")

// RetryPolicy decides how failed requests are retried. A failure is a
// transport error or a response that does not parse.
type RetryPolicy struct {
	// MaxAttempts caps the attempts per request. 0 means no cap.
	MaxAttempts int
	// Backoff is the pause before each retry.
	Backoff time.Duration
	// Confirm, when set, is asked before each retry. Returning false
	// aborts the request.
	Confirm func(ctx context.Context, err error, attempt int) bool
}

// DefaultRetryPolicy tries three times, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

// generate sends prompt until accept takes the response, following the
// retry policy.
func (e *Engine) generate(ctx context.Context, kind, prompt string, maxTokens int, accept func(string) error) error {
	p := e.retry
	for attempt := 1; ; attempt++ {
		text, err := e.call(ctx, kind, prompt, maxTokens)
		if err == nil {
			if err = accept(text); err != nil {
				e.log.Warn("unusable response", "kind", kind, "attempt", attempt, "err", err)
			}
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", kind, ErrAborted, attempt, err)
		}
		if p.Confirm != nil && !p.Confirm(ctx, err, attempt) {
			return fmt.Errorf("%s: %w: %w", kind, ErrAborted, err)
		}
		if p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff):
			}
		}
	}
}

// call makes one request and accounts for its tokens.
func (e *Engine) call(ctx context.Context, kind, prompt string, maxTokens int) (string, error) {
	ai := e.settings.AI
	req := llm.Request{
		Prompt:           prompt,
		MaxTokens:        maxTokens,
		Temperature:      ai.Temperature,
		FrequencyPenalty: ai.FrequencyPenalty,
		PresencePenalty:  ai.PresencePenalty,
	}
	start := time.Now()
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		// Providers report usage for empty answers too.
		e.account(resp.Usage)
		e.log.Error("model request failed", "kind", kind, "err", err)
		return "", err
	}
	tokens := e.account(resp.Usage)
	e.log.Debug("model request", "kind", kind, "tokens", tokens, "elapsed", time.Since(start))

	if e.recorder != nil {
		if err := e.recorder.RecordExchange(ctx, e.GameID, kind, prompt, resp.Text, tokens); err != nil {
			e.log.Warn("record exchange", "err", err)
		}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Text, nil
}

func (e *Engine) account(u llm.Usage) int {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	e.Tokens.LastPrompt = u.PromptTokens
	e.Tokens.LastCompletion = u.CompletionTokens
	e.Tokens.TotalPrompt += u.PromptTokens
	e.Tokens.TotalCompletion += u.CompletionTokens
	e.Tokens.Total += total
	e.turnTokens += total
	return total
}
