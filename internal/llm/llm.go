package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when there is no text to enrich.
	ErrEmptyInput = errors.New("no text to enrich")
	// ErrUnusableResult is returned when the model reply has no usable summary.
	ErrUnusableResult = errors.New("unusable enrichment result")
	// ErrNotConfigured is returned by the placeholder client.
	ErrNotConfigured = errors.New("enrichment model not configured")
)

// Enrichment is the model-derived metadata for a document.
type Enrichment struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Enricher turns document text into an Enrichment.
type Enricher interface {
	Enrich(ctx context.Context, text string) (Enrichment, error)
}

// Completer sends a single prompt to a model provider and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewEnricher adapts a Completer to Enricher.
func NewEnricher(c Completer) Enricher {
	return completerEnricher{completer: c}
}

type completerEnricher struct {
	completer Completer
}

func (e completerEnricher) Enrich(ctx context.Context, text string) (Enrichment, error) {
	prompt, err := BuildEnrichmentPrompt(text)
	if err != nil {
		return Enrichment{}, err
	}
	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return Enrichment{}, fmt.Errorf("complete: %w", err)
	}
	return ParseEnrichment(raw)
}

// PlaceholderClient is used when no provider is configured.
type PlaceholderClient struct{}

// Enrich returns ErrNotConfigured.
func (PlaceholderClient) Enrich(ctx context.Context, text string) (Enrichment, error) {
	_ = ctx
	_ = text
	return Enrichment{}, ErrNotConfigured
}
