//go:build !onnx
// +build !onnx

package detect

import (
	"github.com/veilproject/veil/internal/config"
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set.
func NewModelBackend(logger *zap.Logger, cfg config.ModelConfig) ModelBackend {
	return nil
}
