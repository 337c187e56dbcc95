// Package ai exposes the external text-understanding capabilities used by the
// pipeline. Every capability may be unavailable; callers fall back to their
// rule-based results on any error.
package ai

import (
	"context"
	"errors"
)

var (
	ErrUnavailable     = errors.New("ai capability unavailable")
	ErrInvalidResponse = errors.New("ai service returned an invalid response")
)

// Classification is the raw answer of ClassifyText. Label is not guaranteed to
// belong to the requested label set.
type Classification struct {
	Label      string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type TextClassifier interface {
	ClassifyText(ctx context.Context, text string, labels []string, hint string) (*Classification, error)
}

type StructuredExtractor interface {
	// ExtractStructured returns a JSON object shaped by schema (a JSON schema document).
	ExtractStructured(ctx context.Context, text string, schema []byte) (map[string]any, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Service bundles the three capabilities.
type Service interface {
	TextClassifier
	StructuredExtractor
	Embedder
}

// Unavailable is the explicit "no external service" implementation.
type Unavailable struct{}

func (Unavailable) ClassifyText(context.Context, string, []string, string) (*Classification, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ExtractStructured(context.Context, string, []byte) (map[string]any, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Embed(context.Context, []string) ([][]float64, error) {
	return nil, ErrUnavailable
}
