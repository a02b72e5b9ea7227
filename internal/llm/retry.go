package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransientError marks a provider failure worth retrying (rate limits, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is marked as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Retrying wraps a ChatModel and retries transient failures with linear backoff.
type Retrying struct {
	Model      ChatModel
	MaxRetries int
	Delay      time.Duration
}

// WithRetry wraps model so transient failures are retried up to maxRetries times.
func WithRetry(model ChatModel, maxRetries int) *Retrying {
	return &Retrying{Model: model, MaxRetries: maxRetries, Delay: time.Second}
}

// Chat implements ChatModel.
func (r *Retrying) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		out, err := r.Model.Chat(ctx, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == r.MaxRetries {
			break
		}

		timer := time.NewTimer(r.Delay * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ChatOut{}, ctx.Err()
		case <-timer.C:
		}
	}

	if IsTransient(lastErr) && r.MaxRetries > 0 {
		return ChatOut{}, fmt.Errorf("model failed after %d retries: %w", r.MaxRetries, lastErr)
	}
	return ChatOut{}, lastErr
}
