// Package events carries recognition results and errors from a session to
// its single subscriber.
package events

import (
	"encoding/json"
	"errors"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

// Kind distinguishes utterance events from error events.
type Kind string

const (
	KindUtterance Kind = "utterance"
	KindError     Kind = "error"
)

// Error kinds reported on the wire.
const (
	ErrorKindConfiguration = "configuration"
	ErrorKindResourceFault = "resource_fault"
	ErrorKindInternal      = "internal"
)

// Utterance is a finished recognition result.
type Utterance struct {
	Text        string
	UtteranceID string
	Score       float64
}

// Event is one item delivered to the subscriber. Sequence is the sequence
// number of the chunk that produced the event, zero for startup errors.
type Event struct {
	Kind      Kind
	Sequence  uint64
	Utterance Utterance
	Err       error
}

// UtteranceEvent builds an utterance event.
func UtteranceEvent(sequence uint64, hyp engine.Hypothesis) Event {
	return Event{
		Kind:     KindUtterance,
		Sequence: sequence,
		Utterance: Utterance{
			Text:        hyp.Text,
			UtteranceID: hyp.UtteranceID,
			Score:       hyp.Score,
		},
	}
}

// ErrorEvent builds an error event.
func ErrorEvent(sequence uint64, err error) Event {
	return Event{Kind: KindError, Sequence: sequence, Err: err}
}

// Message returns the error text of an error event.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// ErrorKind classifies the error of an error event.
func (e Event) ErrorKind() string {
	if e.Kind != KindError {
		return ""
	}
	return ErrorKindOf(e.Err)
}

// ErrorKindOf classifies err. Errors may name their own kind through a
// Kind() string method; resource faults take precedence.
func ErrorKindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrResourceFault):
		return ErrorKindResourceFault
	case errors.Is(err, models.ErrConfiguration):
		return ErrorKindConfiguration
	}
	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ErrorKindInternal
}

// Record is the JSON form of an event.
type Record struct {
	Event     string   `json:"event"`
	Sequence  uint64   `json:"sequence,omitempty"`
	Hyp       string   `json:"hyp,omitempty"`
	Utterance string   `json:"utterance,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Record converts the event to its wire form.
func (e Event) Record() Record {
	rec := Record{Event: string(e.Kind), Sequence: e.Sequence}
	switch e.Kind {
	case KindUtterance:
		score := e.Utterance.Score
		rec.Hyp = e.Utterance.Text
		rec.Utterance = e.Utterance.UtteranceID
		rec.Score = &score
	case KindError:
		rec.Kind = e.ErrorKind()
		rec.Message = e.Message()
	}
	return rec
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}
