//go:build pocketsphinx

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xlab/pocketsphinx-go/sphinx"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// PocketSphinxAvailable reports whether the pocketsphinx backend is compiled in.
func PocketSphinxAvailable() bool { return true }

// PocketSphinxEngine decodes with a CMU pocketsphinx decoder.
type PocketSphinxEngine struct {
	mu  sync.Mutex
	log *slog.Logger
	dec *sphinx.Decoder

	open   bool
	closed bool
}

// NewPocketSphinxEngine loads the acoustic model, language model and
// dictionary named by opts.
func NewPocketSphinxEngine(opts models.Options, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Verify(); err != nil {
		return nil, err
	}

	cfg := sphinx.NewConfig(
		sphinx.HMMDirOption(opts.AcousticModelPath),
		sphinx.LMFileOption(opts.LanguageModelPath),
		sphinx.DictFileOption(opts.DictionaryPath),
		sphinx.SampleRateOption(float32(opts.SampleRate)),
		sphinx.UserOption("-nfft").Int(opts.FFTSize),
		sphinx.LogFileOption("/dev/null"),
	)
	dec, err := sphinx.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("pocketsphinx: init decoder: %w", err)
	}

	return &PocketSphinxEngine{
		log: logger.With("component", "engine.pocketsphinx"),
		dec: dec,
	}, nil
}

// StartUtterance implements the Engine interface.
func (e *PocketSphinxEngine) StartUtterance() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrResourceFault
	}
	if e.open {
		e.dec.EndUtt()
	}
	if !e.dec.StartUtt() {
		return fmt.Errorf("%w: pocketsphinx: start utterance failed", ErrResourceFault)
	}
	e.open = true
	return nil
}

// ProcessAudio implements the Engine interface.
func (e *PocketSphinxEngine) ProcessAudio(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNoUtterance
	}
	if len(samples) == 0 {
		return nil
	}
	frames, ok := e.dec.ProcessRaw(samples, false, false)
	if !ok {
		return errors.New("pocketsphinx: process raw failed")
	}
	e.log.Debug("processed audio", "samples", len(samples), "frames", frames)
	return nil
}

// EndUtterance implements the Engine interface.
func (e *PocketSphinxEngine) EndUtterance(ctx context.Context) (Hypothesis, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return Hypothesis{}, ErrNoUtterance
	}
	e.open = false
	if !e.dec.EndUtt() {
		return Hypothesis{}, errors.New("pocketsphinx: end utterance failed")
	}
	if err := ctx.Err(); err != nil {
		return Hypothesis{}, err
	}

	raw, score := e.dec.Hypothesis()
	return Hypothesis{
		Text:  normaliseHypothesis(raw),
		Score: float64(score),
	}, nil
}

// Close implements the Engine interface.
func (e *PocketSphinxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.open {
		e.dec.EndUtt()
		e.open = false
	}
	if !e.dec.Destroy() {
		return errors.New("pocketsphinx: decoder still referenced on destroy")
	}
	return nil
}
