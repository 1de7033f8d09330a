//go:build !vosk

package engine

import (
	"log/slog"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// VoskAvailable reports whether the vosk backend is compiled in.
func VoskAvailable() bool { return false }

// NewVoskEngine returns an error when the backend is not built.
func NewVoskEngine(models.Options, *slog.Logger) (Engine, error) {
	return nil, ErrBackendUnavailable
}
