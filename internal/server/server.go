package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/config"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/session"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

// Metadata keys a client may use to override recognizer options.
const (
	MetadataModelSet   = "nupi.stt.model_set"
	MetadataSampleRate = "nupi.stt.sample_rate"
)

// Server implements the recognizer service: every stream gets its own
// decoding session.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	resolver *models.Resolver
	metrics  *telemetry.Recorder

	// newEngine overrides backend construction in tests.
	newEngine session.EngineFactory
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, resolver *models.Resolver, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		panic("server: resolver must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"engine", cfg.Engine,
		),
		resolver: resolver,
		metrics:  metrics,
	}
}

// Recognize decodes the audio of one client stream. The stream stays open
// until the client closes its send side; pending speech is then flushed and
// every remaining event delivered before the call returns.
func (s *Server) Recognize(stream RecognizeServerStream) error {
	ctx := stream.Context()

	first, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		s.log.Error("failed to receive request", "error", err)
		return err
	}

	opts := optionsFromMetadata(s.cfg.RecognizerOptions(), first.Metadata)
	if first.Options != nil {
		opts = opts.Merge(*first.Options)
	}

	sess := session.New(session.Params{
		Options:   opts,
		Resolver:  s.resolver,
		Engine:    s.cfg.EngineKind(),
		NewEngine: s.newEngine,
		Endpoint:  s.cfg.EndpointConfig(),
		Recorder:  s.metrics,
		Metadata:  first.Metadata,
		Logger:    s.log,
	})
	defer sess.Close()

	log := s.log.With("session_id", sess.ID())
	log.Info("stream opened", "metadata", first.Metadata)

	forwarded := make(chan forwardResult, 1)
	go func() { forwarded <- s.forward(stream, sess, log) }()

	// A decoder fault closes the session, so later submits and the final
	// drain only see NotReady. The fault is what the client is told.
	finish := func(cause error) error {
		_ = sess.Close()
		res := <-forwarded
		if res.fault != nil && (cause == nil || errors.Is(cause, session.ErrNotReady)) {
			return statusFor(res.fault)
		}
		if res.sendErr != nil && cause == nil {
			return res.sendErr
		}
		return statusFor(cause)
	}

	if err := sess.Wait(ctx); err != nil {
		log.Warn("session failed to start", "error", err)
		return finish(err)
	}

	req := first
	for {
		if err := apply(sess, req); err != nil {
			log.Warn("session stopped accepting audio", "error", err)
			return finish(err)
		}
		req, err = stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Debug("receive ended", "error", err)
			return finish(err)
		}
	}

	if err := sess.Drain(ctx); err != nil && !errors.Is(err, session.ErrNotReady) {
		return finish(err)
	}
	log.Info("stream closed by client")
	return finish(nil)
}

func apply(sess *session.Session, req *RecognizeRequest) error {
	if req == nil {
		return nil
	}
	if len(req.Audio) > 0 {
		if err := sess.Submit(req.Audio); err != nil {
			return err
		}
	}
	if req.Flush {
		return sess.Flush()
	}
	return nil
}

type forwardResult struct {
	sendErr error
	// fault is the last resource fault reported by the session.
	fault error
}

// forward relays session events until the event stream closes. After a send
// failure the session stops delivering events.
func (s *Server) forward(stream RecognizeServerStream, sess *session.Session, log *slog.Logger) forwardResult {
	var res forwardResult
	for ev := range sess.Events() {
		if ev.Kind == events.KindError && errors.Is(ev.Err, engine.ErrResourceFault) {
			res.fault = ev.Err
		}
		if res.sendErr != nil {
			continue
		}
		resp := &RecognizeResponse{Record: ev.Record()}
		if ev.Kind == events.KindUtterance {
			opts := sess.Options()
			resp.Metadata = adapterinfo.UtteranceMetadata(opts.ModelSet, opts.SampleRate)
		}
		if err := stream.Send(resp); err != nil {
			log.Error("failed to send event", "error", err)
			res.sendErr = err
			sess.Unsubscribe()
		}
	}
	return res
}

// optionsFromMetadata applies client metadata overrides to base.
func optionsFromMetadata(base models.Options, meta map[string]string) models.Options {
	if set := strings.TrimSpace(meta[MetadataModelSet]); set != "" {
		base.ModelSet = set
	}
	if raw := strings.TrimSpace(meta[MetadataSampleRate]); raw != "" {
		if rate, err := strconv.Atoi(raw); err == nil && rate > 0 {
			base.SampleRate = rate
		}
	}
	return base
}

func statusFor(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, models.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrResourceFault):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, session.ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}
