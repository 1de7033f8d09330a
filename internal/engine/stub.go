package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/adapterinfo"
)

// StubEngine produces deterministic hypotheses without a speech model. The
// score is the utterance loudness in dBFS so louder input ranks higher.
type StubEngine struct {
	log      *slog.Logger
	modelSet string

	open    bool
	samples int
	energy  float64
}

// NewStubEngine returns an Engine that generates placeholder hypotheses.
func NewStubEngine(logger *slog.Logger, modelSet string) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEngine{
		log: logger.With(
			"component", "engine.stub",
			"adapter", adapterinfo.Info.Slug,
			"model_set", modelSet,
		),
		modelSet: modelSet,
	}
}

// StartUtterance implements the Engine interface.
func (e *StubEngine) StartUtterance() error {
	e.open = true
	e.samples = 0
	e.energy = 0
	return nil
}

// ProcessAudio implements the Engine interface.
func (e *StubEngine) ProcessAudio(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.open {
		return ErrNoUtterance
	}
	for _, s := range samples {
		v := float64(s) / 32768.0
		e.energy += v * v
	}
	e.samples += len(samples)
	return nil
}

// EndUtterance implements the Engine interface.
func (e *StubEngine) EndUtterance(ctx context.Context) (Hypothesis, error) {
	if err := ctx.Err(); err != nil {
		return Hypothesis{}, err
	}
	if !e.open {
		return Hypothesis{}, ErrNoUtterance
	}
	e.open = false
	if e.samples == 0 {
		return Hypothesis{}, nil
	}

	hyp := Hypothesis{
		Text:  fmt.Sprintf("[stub:%s] utterance of %d samples", e.modelSet, e.samples),
		Score: 10 * math.Log10(e.energy/float64(e.samples)+1e-12),
	}
	e.log.Debug("stub hypothesis", "samples", e.samples, "score", hyp.Score)
	return hyp, nil
}

// Close implements the Engine interface.
func (e *StubEngine) Close() error {
	e.open = false
	return nil
}
