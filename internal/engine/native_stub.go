//go:build !pocketsphinx

package engine

import (
	"log/slog"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// PocketSphinxAvailable reports whether the pocketsphinx backend is compiled in.
func PocketSphinxAvailable() bool { return false }

// NewPocketSphinxEngine returns an error when the backend is not built.
func NewPocketSphinxEngine(models.Options, *slog.Logger) (Engine, error) {
	return nil, ErrBackendUnavailable
}
