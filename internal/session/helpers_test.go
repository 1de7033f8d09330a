package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

const testRate = 16000

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticResolver(t *testing.T, dir string) *models.Resolver {
	t.Helper()
	r, err := models.NewResolver(models.StaticLookup(dir), discardLogger())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func silencePCM(d time.Duration) []byte {
	return make([]byte, 2*int(int64(testRate)*int64(d)/int64(time.Second)))
}

func speechPCM(d time.Duration) []byte {
	n := int(int64(testRate) * int64(d) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*300*float64(i)/testRate))
	}
	return audio.Int16ToBytes(samples)
}

// utterancePCM is one spoken utterance followed by enough silence to end it.
func utterancePCM() []byte {
	return append(speechPCM(500*time.Millisecond), silencePCM(1200*time.Millisecond)...)
}

func calibrationPCM() []byte { return silencePCM(300 * time.Millisecond) }

func newSession(t *testing.T, params Params) *Session {
	t.Helper()
	if params.Logger == nil {
		params.Logger = discardLogger()
	}
	if params.Resolver == nil {
		params.Resolver = staticResolver(t, "/opt/models")
	}
	s := New(params)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitReady(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("expected ready state, got %s", s.State())
	}
}

func nextEvent(t *testing.T, s *Session) events.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Event{}
}

func expectNoEvent(t *testing.T, s *Session, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(wait):
	}
}

// drainEvents reads until the stream closes.
func drainEvents(t *testing.T, s *Session) []events.Event {
	t.Helper()
	var out []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func drain(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

// fakeEngine numbers utterances from 1 and can fail selected ones.
type fakeEngine struct {
	mu       sync.Mutex
	started  int
	open     bool
	samples  int
	endErrs  map[int]error
	closed   atomic.Int32
	closeErr error
}

func (f *fakeEngine) StartUtterance() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.open = true
	f.samples = 0
	return nil
}

func (f *fakeEngine) ProcessAudio(ctx context.Context, samples []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return engine.ErrNoUtterance
	}
	f.samples += len(samples)
	return nil
}

func (f *fakeEngine) EndUtterance(ctx context.Context) (engine.Hypothesis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	if err := f.endErrs[f.started]; err != nil {
		return engine.Hypothesis{}, err
	}
	return engine.Hypothesis{
		Text:  fmt.Sprintf("utterance %d", f.started),
		Score: -float64(f.samples),
	}, nil
}

func (f *fakeEngine) Close() error {
	f.closed.Add(1)
	return f.closeErr
}

func fakeFactory(f *fakeEngine) EngineFactory {
	return func(context.Context, models.Options) (engine.Engine, error) { return f, nil }
}
