package detect

import (
	"context"

	"github.com/veilproject/veil/internal/entity"
)

// ModelBackend defines a pluggable statistical detector over an inference
// engine. Implementations may use ONNX Runtime or other engines.
type ModelBackend interface {
	// Entities runs token classification over the text and returns the
	// detected entities with model confidence scores.
	Entities(ctx context.Context, text string) ([]entity.Entity, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NewModelBackend creates a backend if supported by the current build.
// The default (no build tags) returns nil to avoid CGO dependencies.
// Note: Implementations are provided in build-tagged files, e.g., backend_onnx.go and backend_stub.go
