package engine

import (
	"context"
	"errors"
	"sort"
)

// Engine decodes one utterance at a time. Calls are made from a single
// goroutine; implementations need not be safe for concurrent use.
type Engine interface {
	// StartUtterance begins a new utterance, discarding any partial state.
	StartUtterance() error
	// ProcessAudio feeds 16-bit mono samples of the open utterance.
	ProcessAudio(ctx context.Context, samples []int16) error
	// EndUtterance closes the utterance and returns the best hypothesis.
	EndUtterance(ctx context.Context) (Hypothesis, error)
	// Close releases underlying resources.
	Close() error
}

// Hypothesis is the decoder's best transcription of one utterance. Score is
// backend defined; a higher score is a more confident result.
type Hypothesis struct {
	Text        string
	UtteranceID string
	Score       float64
}

// Empty reports whether the hypothesis carries no words.
func (h Hypothesis) Empty() bool { return h.Text == "" }

var (
	// ErrResourceFault marks errors after which the backend cannot be used again.
	ErrResourceFault = errors.New("engine: resource fault")
	// ErrBackendUnavailable indicates a backend that was not compiled in.
	ErrBackendUnavailable = errors.New("engine: backend unavailable")
	// ErrNoUtterance is returned when audio or an end arrives with no open utterance.
	ErrNoUtterance = errors.New("engine: no utterance in progress")
)

// Best returns the highest scoring hypothesis. Ties keep the earliest one.
func Best(hyps ...Hypothesis) (Hypothesis, bool) {
	if len(hyps) == 0 {
		return Hypothesis{}, false
	}
	sorted := append([]Hypothesis(nil), hyps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted[0], true
}
