package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"docvault/internal/shared/telemetry"
)

const retryDelay = 300 * time.Millisecond

type retryingEnricher struct {
	base  Enricher
	delay time.Duration
}

// WithRetry wraps base with one delayed retry on transient provider failures.
func WithRetry(base Enricher) Enricher {
	if base == nil {
		return nil
	}
	return retryingEnricher{base: base, delay: retryDelay}
}

func (r retryingEnricher) Enrich(ctx context.Context, text string) (Enrichment, error) {
	out, err := r.base.Enrich(ctx, text)
	if err == nil || !shouldRetry(err) {
		return out, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt": 1,
		"error":   sanitizeError(err),
	})
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return Enrichment{}, ctx.Err()
	}
	return r.base.Enrich(ctx, text)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrUnusableResult) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "http status 429") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

func sanitizeError(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
