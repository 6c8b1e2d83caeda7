package service

import (
	"context"

	"github.com/example/cleancity/backend/internal/ai"
)

// Collaborator interfaces consumed by the pipeline services. Concrete REST
// clients live in internal/ai, internal/weather and internal/storage; tests
// substitute fakes.

// VisionAnalyzer is the hard gate collaborator.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte) (ai.VisionResult, error)
}

// ValueEstimator appraises recyclable value. Non-fatal.
type ValueEstimator interface {
	Estimate(ctx context.Context, image []byte) (ai.ValueEstimate, error)
}

// Transcriber converts voice attachments to text. Non-fatal.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// TextEnricher translates and classifies descriptions. Non-fatal.
type TextEnricher interface {
	Enrich(ctx context.Context, text string) (ai.Enrichment, error)
}

// ForecastProvider returns the worst-case rain probability (0-100) for a
// position. Non-fatal.
type ForecastProvider interface {
	MaxRainProbability(ctx context.Context, lat, lon float64) (float64, error)
}

// ObjectStore uploads images and resolves stored references to URLs.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	Resolve(ref string) string
}

// VisualComparator judges a before/after image pair.
type VisualComparator interface {
	Compare(ctx context.Context, beforeURL, afterURL string) (ai.CompareResult, error)
}
