//go:build vosk

package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// VoskAvailable reports whether the vosk backend is compiled in.
func VoskAvailable() bool { return true }

// VoskEngine decodes with a Kaldi model through libvosk. The acoustic model
// path names the vosk model directory; the language model and dictionary
// are part of that directory and ignored.
type VoskEngine struct {
	mu    sync.Mutex
	log   *slog.Logger
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer

	open bool
	buf  []byte
}

// voskAlternatives is the n-best list size requested from the recognizer.
const voskAlternatives = 3

// voskResult is a final result with alternatives enabled. Each alternative
// carries the total decoder confidence of its path.
type voskResult struct {
	Alternatives []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

// NewVoskEngine loads the vosk model at opts.AcousticModelPath.
func NewVoskEngine(opts models.Options, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(opts.AcousticModelPath); err != nil {
		return nil, fmt.Errorf("vosk: model: %w", err)
	}

	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(opts.AcousticModelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model: %w", err)
	}
	rec, err := vosk.NewRecognizer(model, float64(opts.SampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	rec.SetMaxAlternatives(voskAlternatives)

	return &VoskEngine{
		log:   logger.With("component", "engine.vosk"),
		model: model,
		rec:   rec,
	}, nil
}

// StartUtterance implements the Engine interface.
func (e *VoskEngine) StartUtterance() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return ErrResourceFault
	}
	e.rec.Reset()
	e.open = true
	return nil
}

// ProcessAudio implements the Engine interface.
func (e *VoskEngine) ProcessAudio(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return ErrResourceFault
	}
	if !e.open {
		return ErrNoUtterance
	}
	e.buf = e.buf[:0]
	for _, s := range samples {
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(s))
	}
	if e.rec.AcceptWaveform(e.buf) < 0 {
		return fmt.Errorf("vosk: accept waveform failed")
	}
	return nil
}

// EndUtterance implements the Engine interface.
func (e *VoskEngine) EndUtterance(ctx context.Context) (Hypothesis, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return Hypothesis{}, ErrResourceFault
	}
	if !e.open {
		return Hypothesis{}, ErrNoUtterance
	}
	e.open = false
	if err := ctx.Err(); err != nil {
		return Hypothesis{}, err
	}

	best, n, err := bestVoskAlternative(e.rec.FinalResult())
	if err != nil {
		return Hypothesis{}, err
	}
	e.log.Debug("vosk hypothesis", "alternatives", n, "score", best.Score)
	return best, nil
}

// bestVoskAlternative picks the highest confidence alternative of a final
// result document. No alternatives yields an empty hypothesis.
func bestVoskAlternative(raw string) (Hypothesis, int, error) {
	var res voskResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Hypothesis{}, 0, fmt.Errorf("vosk: decode result: %w", err)
	}
	candidates := make([]Hypothesis, 0, len(res.Alternatives))
	for _, alt := range res.Alternatives {
		candidates = append(candidates, Hypothesis{
			Text:  normaliseHypothesis(alt.Text),
			Score: alt.Confidence,
		})
	}
	best, _ := Best(candidates...)
	return best, len(candidates), nil
}

// Close implements the Engine interface.
func (e *VoskEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
	if e.rec != nil {
		e.rec.Free()
		e.rec = nil
	}
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}
