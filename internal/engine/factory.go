package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// Kind names a decoder backend.
type Kind string

const (
	KindAuto         Kind = "auto"
	KindStub         Kind = "stub"
	KindPocketSphinx Kind = "pocketsphinx"
	KindVosk         Kind = "vosk"
)

// ParseKind maps a configuration value to a backend kind. Empty selects auto.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindStub, KindPocketSphinx, KindVosk:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown engine %q", models.ErrConfiguration, value)
	}
}

type backend struct {
	kind      Kind
	available func() bool
	build     func(models.Options, *slog.Logger) (Engine, error)
}

// nativeBackends lists compiled decoders in the order auto tries them.
var nativeBackends = []backend{
	{kind: KindPocketSphinx, available: PocketSphinxAvailable, build: NewPocketSphinxEngine},
	{kind: KindVosk, available: VoskAvailable, build: NewVoskEngine},
}

// Available lists the backends usable in this build, stub last.
func Available() []Kind {
	var kinds []Kind
	for _, b := range nativeBackends {
		if b.available() {
			kinds = append(kinds, b.kind)
		}
	}
	return append(kinds, KindStub)
}

// New builds the requested backend for resolved options and reports which
// backend was chosen. Auto tries every compiled native backend and falls back
// to the stub engine. Construction failures of an explicitly requested
// backend wrap ErrResourceFault.
func New(kind Kind, opts models.Options, logger *slog.Logger) (Engine, Kind, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine.factory")

	switch kind {
	case KindStub:
		logger.Warn("stub engine forced by configuration")
		return NewStubEngine(logger, opts.ModelSet), KindStub, nil
	case KindAuto, "":
		return newAuto(opts, logger)
	}

	for _, b := range nativeBackends {
		if b.kind != kind {
			continue
		}
		if !b.available() {
			return nil, kind, fmt.Errorf("%w: %s: %w", ErrResourceFault, kind, ErrBackendUnavailable)
		}
		eng, err := b.build(opts, logger)
		if err != nil {
			return nil, kind, fmt.Errorf("%w: %s: %w", ErrResourceFault, kind, err)
		}
		logger.Info("native engine ready", "engine", kind, "acoustic_model", opts.AcousticModelPath)
		return eng, kind, nil
	}
	return nil, kind, fmt.Errorf("%w: unknown engine %q", models.ErrConfiguration, kind)
}

func newAuto(opts models.Options, logger *slog.Logger) (Engine, Kind, error) {
	for _, b := range nativeBackends {
		if !b.available() {
			continue
		}
		eng, err := b.build(opts, logger)
		if err != nil {
			logger.Error("native engine initialisation failed; trying next backend", "engine", b.kind, "error", err)
			continue
		}
		logger.Info("native engine ready", "engine", b.kind, "acoustic_model", opts.AcousticModelPath)
		return eng, b.kind, nil
	}
	logger.Warn("no native backend usable; using stub engine")
	return NewStubEngine(logger, opts.ModelSet), KindStub, nil
}
