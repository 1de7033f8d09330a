// Package session runs one streaming recognition pipeline: it resolves the
// recognizer options and builds a decoder in the background, then decodes
// submitted PCM chunks in order on a single worker and publishes the results
// as events.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/endpoint"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

// EngineFactory builds the decoder backend for resolved options.
type EngineFactory func(ctx context.Context, opts models.Options) (engine.Engine, error)

// Params configures a session.
type Params struct {
	// Options are the caller's recognizer options; unset fields are resolved.
	Options models.Options
	// Resolver fills in missing options. Nil resolves through pkg-config
	// with the static fallback directory.
	Resolver *models.Resolver
	// Engine selects the backend when NewEngine is nil.
	Engine engine.Kind
	// NewEngine overrides backend construction.
	NewEngine EngineFactory
	// Endpoint tunes utterance detection. Its sample rate always follows
	// the resolved options.
	Endpoint endpoint.Config
	Recorder *telemetry.Recorder
	Metadata map[string]string
	Logger   *slog.Logger
}

type job struct {
	seq   uint64
	data  []byte
	flush bool
	done  chan struct{}
}

// Session is a streaming decoder bound to one backend.
type Session struct {
	id     string
	log    *slog.Logger
	params Params

	ctx     context.Context
	cancel  context.CancelFunc
	ready   chan struct{}
	initErr error

	emitter *events.Emitter
	metrics *telemetry.SessionMetrics

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	opts       models.Options
	backend    engine.Kind
	eng        engine.Engine
	queue      []job
	seq        uint64
	workerDone chan struct{}

	closeOnce   sync.Once
	releaseOnce sync.Once
	closeErr    error

	// Owned by the worker goroutine.
	pcm         *audio.Decoder
	detector    *endpoint.Detector
	inUtterance bool
	utterances  uint64
}

// New returns a session in the Uninitialized state and starts resolving
// options and building the decoder in the background. Use Wait or Ready to
// learn the outcome.
func New(params Params) *Session {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
		params.Logger = logger
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:      id,
		log:     logger.With("component", "session", "session_id", id),
		params:  params,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		emitter: events.NewEmitter(),
		metrics: params.Recorder.StartSession(id, params.Metadata),
		pcm:     audio.NewDecoder(audio.S16LE),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.start()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Options returns a copy of the resolved options. It is the zero value until
// the session is Ready.
func (s *Session) Options() models.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Backend names the decoder backend in use.
func (s *Session) Backend() engine.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Events returns the event stream. It is closed after Close once every
// queued event has been received.
func (s *Session) Events() <-chan events.Event { return s.emitter.Events() }

// Unsubscribe drops undelivered events and closes the event stream. It is
// for subscribers that stop reading early; decoding continues and later
// events are discarded.
func (s *Session) Unsubscribe() { s.emitter.Abort() }

// Ready is closed when initialisation has finished, successfully or not.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Wait blocks until initialisation finishes and returns its error. A session
// closed before it became ready reports a NotReadyError.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) start() {
	defer close(s.ready)

	opts, eng, kind, err := s.build()

	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		if eng != nil {
			if cerr := eng.Close(); cerr != nil {
				s.log.Warn("close discarded backend", "error", cerr)
			}
		}
		s.initErr = &NotReadyError{State: Closed}
		s.log.Debug("initialisation finished after close; backend discarded")
		return
	}
	if err != nil {
		s.initErr = err
		s.state = Closed
		s.emitter.Publish(events.ErrorEvent(0, err))
		s.mu.Unlock()
		s.log.Error("session initialisation failed", "error", err)
		s.release(err)
		return
	}

	cfg := s.params.Endpoint
	cfg.SampleRate = opts.SampleRate
	s.detector = endpoint.New(cfg)
	s.opts = opts
	s.eng = eng
	s.backend = kind
	s.state = Ready
	s.workerDone = make(chan struct{})
	go s.run()
	s.mu.Unlock()

	s.log.Info("session ready",
		"engine", kind,
		"model_set", opts.ModelSet,
		"acoustic_model", opts.AcousticModelPath,
		"sample_rate", opts.SampleRate,
		"fft_size", opts.FFTSize,
	)
}

func (s *Session) build() (models.Options, engine.Engine, engine.Kind, error) {
	resolver := s.params.Resolver
	if resolver == nil {
		r, err := models.NewResolver(nil, s.params.Logger)
		if err != nil {
			return models.Options{}, nil, "", fmt.Errorf("session: resolver: %w", err)
		}
		resolver = r
	}

	opts, err := resolver.Resolve(s.ctx, s.params.Options)
	if err != nil {
		return models.Options{}, nil, "", fmt.Errorf("session: resolve options: %w", err)
	}
	if err := s.ctx.Err(); err != nil {
		return opts, nil, "", err
	}

	var (
		eng  engine.Engine
		kind engine.Kind
	)
	if s.params.NewEngine != nil {
		kind = "custom"
		eng, err = s.params.NewEngine(s.ctx, opts)
	} else {
		eng, kind, err = engine.New(s.params.Engine, opts, s.params.Logger)
	}
	if err != nil {
		if !errors.Is(err, models.ErrConfiguration) && !errors.Is(err, engine.ErrResourceFault) {
			err = fmt.Errorf("%w: %w", engine.ErrResourceFault, err)
		}
		return opts, nil, kind, fmt.Errorf("session: start decoder: %w", err)
	}
	return opts, eng, kind, nil
}

// Submit queues a chunk of little-endian 16-bit mono PCM for decoding and
// returns without waiting for it. Chunks are decoded in submission order.
// Outside the Ready state it fails with a NotReadyError. Chunks still queued
// when Close runs are discarded, logged and counted; Shutdown decodes them
// first.
func (s *Session) Submit(chunk []byte) error {
	_, err := s.enqueue(job{data: chunk})
	return err
}

// Write implements io.Writer on top of Submit.
func (s *Session) Write(p []byte) (int, error) {
	if err := s.Submit(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush queues a forced end of the current utterance. Pending speech yields
// an utterance event, attributed to the last submitted chunk, once the queue
// reaches it.
func (s *Session) Flush() error {
	_, err := s.enqueue(job{flush: true})
	return err
}

// Drain flushes the current utterance and waits until every chunk queued
// before it has been decoded.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	if _, err := s.enqueue(job{flush: true, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) enqueue(j job) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return 0, &NotReadyError{State: s.state}
	}
	if !j.flush {
		if len(j.data) == 0 {
			return 0, nil
		}
		j.data = bytes.Clone(j.data)
		s.seq++
		s.metrics.RecordChunk(s.seq, len(j.data))
	}
	j.seq = s.seq
	s.queue = append(s.queue, j)
	s.cond.Signal()
	return j.seq, nil
}

// Shutdown drains the queue, flushing pending speech, and then closes the
// session. If ctx ends first the remaining chunks are discarded as in Close.
func (s *Session) Shutdown(ctx context.Context) error {
	err := s.Drain(ctx)
	closeErr := s.Close()
	if err != nil && !errors.Is(err, ErrNotReady) {
		return err
	}
	return closeErr
}

// Close stops the session. It is safe in any state and idempotent. Queued
// chunks that have not been decoded are dropped, the backend is released
// once, and the event stream is closed after already published events.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		done := s.workerDone
		s.cond.Broadcast()
		s.mu.Unlock()

		s.cancel()
		if done != nil {
			<-done
		}
		s.release(nil)
	})
	return s.closeErr
}

func (s *Session) release(cause error) {
	s.releaseOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		eng := s.eng
		s.mu.Unlock()

		if eng != nil {
			if err := eng.Close(); err != nil {
				s.closeErr = fmt.Errorf("session: close decoder: %w", err)
				s.log.Warn("decoder close failed", "error", err)
			}
		}
		s.emitter.Close()
		s.metrics.Finish(cause)
		s.log.Info("session closed")
	})
}
