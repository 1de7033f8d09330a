package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

func TestSilenceThenUtterance(t *testing.T) {
	s := newSession(t, Params{Engine: engine.KindStub})
	waitReady(t, s)

	if err := s.Submit(append(calibrationPCM(), silencePCM(2*time.Second)...)); err != nil {
		t.Fatalf("Submit silence: %v", err)
	}
	drain(t, s)
	expectNoEvent(t, s, 50*time.Millisecond)

	if err := s.Submit(utterancePCM()); err != nil {
		t.Fatalf("Submit utterance: %v", err)
	}
	ev := nextEvent(t, s)
	if ev.Kind != events.KindUtterance {
		t.Fatalf("expected utterance event, got %+v", ev)
	}
	if strings.TrimSpace(ev.Utterance.Text) == "" {
		t.Fatal("expected non-empty hypothesis text")
	}
	if ev.Utterance.UtteranceID != "000000001" {
		t.Fatalf("unexpected utterance id %q", ev.Utterance.UtteranceID)
	}
	if ev.Sequence != 2 {
		t.Fatalf("expected event for chunk 2, got %d", ev.Sequence)
	}

	drain(t, s)
	expectNoEvent(t, s, 50*time.Millisecond)
}

func TestEventsFollowSubmissionOrder(t *testing.T) {
	fake := &fakeEngine{endErrs: map[int]error{3: errors.New("lattice overflow")}}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	if err := s.Submit(calibrationPCM()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Submit(utterancePCM()); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	var got []events.Event
	for len(got) < 5 {
		got = append(got, nextEvent(t, s))
	}

	for i, ev := range got {
		wantSeq := uint64(i + 2)
		if ev.Sequence != wantSeq {
			t.Fatalf("event %d: sequence %d, want %d", i, ev.Sequence, wantSeq)
		}
	}
	if got[2].Kind != events.KindError {
		t.Fatalf("expected decode error for third utterance, got %+v", got[2])
	}
	var decodeErr *DecodeError
	if !errors.As(got[2].Err, &decodeErr) || decodeErr.Sequence != 4 {
		t.Fatalf("expected DecodeError for chunk 4, got %v", got[2].Err)
	}
	if got[2].ErrorKind() != "decode" {
		t.Fatalf("unexpected error kind %q", got[2].ErrorKind())
	}
	for _, i := range []int{0, 1, 3, 4} {
		if got[i].Kind != events.KindUtterance {
			t.Fatalf("event %d: expected utterance, got %+v", i, got[i])
		}
	}
	if got[3].Utterance.Text != "utterance 4" {
		t.Fatalf("session did not continue after decode error: %q", got[3].Utterance.Text)
	}
	if s.State() != Ready {
		t.Fatalf("decode error must not close the session, state %s", s.State())
	}
}

func TestOneChunkSeveralUtterances(t *testing.T) {
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	chunk := append(calibrationPCM(), utterancePCM()...)
	chunk = append(chunk, utterancePCM()...)
	if err := s.Submit(chunk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	first, second := nextEvent(t, s), nextEvent(t, s)
	if first.Utterance.Text != "utterance 1" || second.Utterance.Text != "utterance 2" {
		t.Fatalf("unexpected utterances %q, %q", first.Utterance.Text, second.Utterance.Text)
	}
	if first.Sequence != 1 || second.Sequence != 1 {
		t.Fatalf("expected both events from chunk 1, got %d and %d", first.Sequence, second.Sequence)
	}
}

func TestSubmitWhileUninitialized(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: func(ctx context.Context, _ models.Options) (engine.Engine, error) {
		<-release
		return fake, nil
	}})

	if s.State() != Uninitialized {
		t.Fatalf("expected uninitialized state, got %s", s.State())
	}
	for _, chunk := range [][]byte{nil, {}, {0x01}, utterancePCM()} {
		err := s.Submit(chunk)
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("expected ErrNotReady, got %v", err)
		}
		var notReady *NotReadyError
		if !errors.As(err, &notReady) || notReady.State != Uninitialized {
			t.Fatalf("expected NotReadyError in uninitialized state, got %v", err)
		}
	}
	if _, err := s.Write([]byte{1, 2}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Write: expected ErrNotReady, got %v", err)
	}

	close(release)
	waitReady(t, s)
	if err := s.Submit(calibrationPCM()); err != nil {
		t.Fatalf("Submit after ready: %v", err)
	}
	drain(t, s)
	_ = s.Close()
	if evs := drainEvents(t, s); len(evs) != 0 {
		t.Fatalf("rejected chunks produced events: %+v", evs)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newSession(t, Params{NewEngine: func(ctx context.Context, _ models.Options) (engine.Engine, error) {
		<-release
		return &fakeEngine{}, nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	if err := s.Submit(calibrationPCM()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 20; i++ {
		if err := s.Submit(utterancePCM()); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	delivered := drainEvents(t, s)
	if len(delivered) > 20 {
		t.Fatalf("too many events: %d", len(delivered))
	}

	err := s.Submit(utterancePCM())
	var notReady *NotReadyError
	if !errors.As(err, &notReady) || notReady.State != Closed {
		t.Fatalf("expected NotReadyError in closed state, got %v", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Flush after close: expected ErrNotReady, got %v", err)
	}
	if s.State() != Closed {
		t.Fatalf("expected closed state, got %s", s.State())
	}
}

func TestLookupFailureFallsBackToDefaults(t *testing.T) {
	failing := func(context.Context) (string, error) { return "", errors.New("pkg-config: not found") }
	resolver, err := models.NewResolver(failing, discardLogger())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	s := newSession(t, Params{Resolver: resolver, Engine: engine.KindStub})
	waitReady(t, s)

	opts := s.Options()
	for _, p := range []string{opts.AcousticModelPath, opts.LanguageModelPath, opts.DictionaryPath} {
		if !strings.HasPrefix(p, models.DefaultBaseDir) {
			t.Fatalf("expected %q under %s", p, models.DefaultBaseDir)
		}
	}
	if opts.SampleRate != models.DefaultSampleRate || opts.FFTSize != models.DefaultFFTSize {
		t.Fatalf("unexpected numeric defaults %+v", opts)
	}
	if s.Backend() != engine.KindStub {
		t.Fatalf("unexpected backend %s", s.Backend())
	}
}

func TestResolvedOptionsRootedAtLookupDir(t *testing.T) {
	s := newSession(t, Params{Resolver: staticResolver(t, "/opt/models"), Engine: engine.KindStub})
	waitReady(t, s)

	opts := s.Options()
	for _, p := range []string{opts.AcousticModelPath, opts.LanguageModelPath, opts.DictionaryPath} {
		if !strings.HasPrefix(p, "/opt/models/") {
			t.Fatalf("expected %q under /opt/models", p)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := fake.closed.Load(); n != 1 {
		t.Fatalf("backend closed %d times", n)
	}
	drainEvents(t, s)
}

func TestCloseDuringInitialisationDiscardsBackend(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: func(ctx context.Context, _ models.Options) (engine.Engine, error) {
		close(entered)
		<-release
		return fake, nil
	}})

	<-entered
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)
	<-s.Ready()

	if s.State() != Closed {
		t.Fatalf("late initialisation revived the session: %s", s.State())
	}
	if n := fake.closed.Load(); n != 1 {
		t.Fatalf("late backend closed %d times", n)
	}
	err := s.Wait(context.Background())
	var notReady *NotReadyError
	if !errors.As(err, &notReady) || notReady.State != Closed {
		t.Fatalf("expected NotReadyError from Wait, got %v", err)
	}
	if evs := drainEvents(t, s); len(evs) != 0 {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestConfigurationErrorClosesSession(t *testing.T) {
	recorder := telemetry.NewRecorder(discardLogger())
	s := newSession(t, Params{
		Options:  models.Options{ModelSet: "klingon"},
		Engine:   engine.KindStub,
		Recorder: recorder,
	})

	err := s.Wait(context.Background())
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	evs := drainEvents(t, s)
	if len(evs) != 1 || evs[0].Kind != events.KindError {
		t.Fatalf("expected exactly one error event, got %+v", evs)
	}
	if evs[0].ErrorKind() != events.ErrorKindConfiguration {
		t.Fatalf("unexpected error kind %q", evs[0].ErrorKind())
	}
	if s.State() != Closed {
		t.Fatalf("expected closed state, got %s", s.State())
	}
	if err := s.Submit(utterancePCM()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if snap := recorder.Snapshot(); snap.ActiveSessions != 0 || snap.TotalSessions != 1 {
		t.Fatalf("unexpected telemetry %+v", snap)
	}
}

func TestBackendStartFailureIsResourceFault(t *testing.T) {
	s := newSession(t, Params{NewEngine: func(context.Context, models.Options) (engine.Engine, error) {
		return nil, errors.New("cannot mmap acoustic model")
	}})

	err := s.Wait(context.Background())
	if !errors.Is(err, engine.ErrResourceFault) {
		t.Fatalf("expected resource fault, got %v", err)
	}
	evs := drainEvents(t, s)
	if len(evs) != 1 || evs[0].ErrorKind() != events.ErrorKindResourceFault {
		t.Fatalf("expected one resource fault event, got %+v", evs)
	}
}

func TestRuntimeResourceFaultClosesSession(t *testing.T) {
	fake := &fakeEngine{endErrs: map[int]error{2: engine.ErrResourceFault}}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	if err := s.Submit(append(calibrationPCM(), utterancePCM()...)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit(utterancePCM()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	evs := drainEvents(t, s)
	if len(evs) != 2 {
		t.Fatalf("expected utterance and fault events, got %+v", evs)
	}
	if evs[0].Kind != events.KindUtterance || evs[1].ErrorKind() != events.ErrorKindResourceFault {
		t.Fatalf("unexpected events %+v", evs)
	}
	if s.State() != Closed {
		t.Fatalf("expected closed state after fault, got %s", s.State())
	}
	if err := s.Submit(utterancePCM()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after fault, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close after fault: %v", err)
	}
	if n := fake.closed.Load(); n != 1 {
		t.Fatalf("backend closed %d times", n)
	}
}

func TestFlushEndsPendingUtterance(t *testing.T) {
	s := newSession(t, Params{Engine: engine.KindStub})
	waitReady(t, s)

	if err := s.Submit(append(calibrationPCM(), speechPCM(400*time.Millisecond)...)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	expectNoEvent(t, s, 100*time.Millisecond)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	ev := nextEvent(t, s)
	if ev.Kind != events.KindUtterance {
		t.Fatalf("expected utterance after flush, got %+v", ev)
	}
	if ev.Sequence != 1 {
		t.Fatalf("expected flush result attributed to chunk 1, got %d", ev.Sequence)
	}
}

func TestWriteCarriesOddBytes(t *testing.T) {
	fake := &fakeEngine{}
	s := newSession(t, Params{NewEngine: fakeFactory(fake)})
	waitReady(t, s)

	stream := append(calibrationPCM(), utterancePCM()...)
	for off := 0; off < len(stream); off += 333 {
		end := min(off+333, len(stream))
		if n, err := s.Write(stream[off:end]); err != nil || n != end-off {
			t.Fatalf("Write: n=%d err=%v", n, err)
		}
	}

	ev := nextEvent(t, s)
	if ev.Kind != events.KindUtterance {
		t.Fatalf("expected utterance, got %+v", ev)
	}
	// 500ms speech and the 1s of silence that ended it.
	if want := float64(-(8000 + 16000)); ev.Utterance.Score != want {
		t.Fatalf("unexpected sample count via score %f, want %f", ev.Utterance.Score, want)
	}
}

func TestOptionsIsACopy(t *testing.T) {
	s := newSession(t, Params{Engine: engine.KindStub})
	waitReady(t, s)

	opts := s.Options()
	opts.AcousticModelPath = "/tmp/changed"
	if s.Options().AcousticModelPath == "/tmp/changed" {
		t.Fatal("Options exposed internal state")
	}
	if s.ID() == "" {
		t.Fatal("expected session id")
	}
}
