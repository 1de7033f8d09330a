package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/config"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/session"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

//go:embed index.html
var indexHTML []byte

const drainTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// control is a text frame sent by the browser.
type control struct {
	Type string `json:"type"`
}

// relay bridges browser sockets to decoding sessions, one session per socket.
type relay struct {
	cfg       config.Config
	log       *slog.Logger
	resolver  *models.Resolver
	metrics   *telemetry.Recorder
	newEngine session.EngineFactory
}

func newRelay(cfg config.Config, logger *slog.Logger, resolver *models.Resolver, metrics *telemetry.Recorder) *relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &relay{
		cfg:      cfg,
		log:      logger.With("component", "demo"),
		resolver: resolver,
		metrics:  metrics,
	}
}

func (rl *relay) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "engine": rl.cfg.Engine})
	})
	r.Get("/socket", rl.serveSocket)
	return r
}

type socketParams struct {
	format   audio.Format
	rate     int
	modelSet string
}

func parseSocketParams(r *http.Request) (socketParams, error) {
	q := r.URL.Query()
	format, err := audio.ParseFormat(q.Get("format"))
	if err != nil {
		return socketParams{}, err
	}
	p := socketParams{format: format, modelSet: strings.TrimSpace(q.Get("model_set"))}
	if raw := strings.TrimSpace(q.Get("rate")); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil || rate <= 0 {
			return socketParams{}, fmt.Errorf("invalid rate %q", raw)
		}
		p.rate = rate
	}
	return p, nil
}

func (rl *relay) serveSocket(w http.ResponseWriter, r *http.Request) {
	params, err := parseSocketParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	opts := rl.cfg.RecognizerOptions()
	if params.modelSet != "" {
		opts.ModelSet = params.modelSet
	}
	sess := session.New(session.Params{
		Options:   opts,
		Resolver:  rl.resolver,
		Engine:    rl.cfg.EngineKind(),
		NewEngine: rl.newEngine,
		Endpoint:  rl.cfg.EndpointConfig(),
		Recorder:  rl.metrics,
		Metadata:  map[string]string{"transport": "websocket", "remote": r.RemoteAddr},
		Logger:    rl.log,
	})
	defer sess.Close()

	log := rl.log.With("session_id", sess.ID())
	written := make(chan struct{})
	go func() {
		defer close(written)
		for ev := range sess.Events() {
			if err := conn.WriteJSON(ev.Record()); err != nil {
				log.Debug("socket write failed", "error", err)
				sess.Unsubscribe()
				return
			}
		}
	}()

	finish := func() {
		_ = sess.Close()
		<-written
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}

	if err := sess.Wait(r.Context()); err != nil {
		log.Warn("session failed to start", "error", err)
		finish()
		return
	}

	rate := params.rate
	if rate == 0 {
		rate = sess.Options().SampleRate
	}
	conv, err := audio.NewConverter(params.format, rate, sess.Options().SampleRate)
	if err != nil {
		log.Warn("unsupported input", "error", err)
		finish()
		return
	}
	log.Info("socket opened", "format", params.format, "rate", rate)

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("socket read ended", "error", err)
			}
			break
		}
		if kind == websocket.TextMessage {
			var msg control
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Debug("ignoring malformed control frame", "error", err)
				continue
			}
			if msg.Type == "end" {
				break
			}
			if msg.Type == "flush" {
				if err := sess.Flush(); err != nil {
					break
				}
			}
			continue
		}
		pcm, err := conv.ConvertBytes(payload)
		if err != nil {
			log.Warn("audio conversion failed", "error", err)
			continue
		}
		if err := sess.Submit(pcm); err != nil {
			log.Warn("session stopped accepting audio", "error", err)
			break
		}
	}

	if tail, err := conv.Flush(); err != nil {
		log.Warn("audio conversion failed", "error", err)
	} else if err := sess.Submit(audio.Int16ToBytes(tail)); err != nil && !errors.Is(err, session.ErrNotReady) {
		log.Warn("submit resampler tail failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sess.Shutdown(ctx); err != nil {
		log.Warn("shutdown failed", "error", err)
	}
	finish()
	log.Info("socket closed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
