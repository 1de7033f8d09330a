package telemetry

import (
	"log/slog"
	"maps"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Recorder tracks adapter-level recognition telemetry across sessions.
type Recorder struct {
	log *slog.Logger

	totalSessions     atomic.Uint64
	activeSessions    atomic.Int64
	totalChunks       atomic.Uint64
	totalBytes        atomic.Uint64
	totalUtterances   atomic.Uint64
	totalDecodeErrors atomic.Uint64
	totalFaults       atomic.Uint64
	totalFlushes      atomic.Uint64
	totalDropped      atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalSessions     uint64
	ActiveSessions    int64
	TotalChunks       uint64
	TotalBytes        uint64
	TotalUtterances   uint64
	TotalDecodeErrors uint64
	TotalFaults       uint64
	TotalFlushes      uint64
	// TotalDropped counts accepted chunks discarded by a close before
	// they were decoded.
	TotalDropped uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalSessions:     r.totalSessions.Load(),
		ActiveSessions:    r.activeSessions.Load(),
		TotalChunks:       r.totalChunks.Load(),
		TotalBytes:        r.totalBytes.Load(),
		TotalUtterances:   r.totalUtterances.Load(),
		TotalDecodeErrors: r.totalDecodeErrors.Load(),
		TotalFaults:       r.totalFaults.Load(),
		TotalFlushes:      r.totalFlushes.Load(),
		TotalDropped:      r.totalDropped.Load(),
	}
}

// LogSummary writes the current totals at info level.
func (r *Recorder) LogSummary() {
	if r == nil {
		return
	}
	s := r.Snapshot()
	r.log.Info("telemetry summary",
		"sessions", s.TotalSessions,
		"active_sessions", s.ActiveSessions,
		"chunks", s.TotalChunks,
		"bytes", s.TotalBytes,
		"utterances", s.TotalUtterances,
		"decode_errors", s.TotalDecodeErrors,
		"faults", s.TotalFaults,
		"flushes", s.TotalFlushes,
		"dropped", s.TotalDropped,
	)
}

// SessionMetrics accumulates statistics for a single recognition session.
// Chunk counters are updated by the submitting side and result counters by
// the session worker; Finish must run after both have stopped.
type SessionMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	sessionID string
	metadata  map[string]string

	started      time.Time
	chunks       int
	bytes        int
	utterances   int
	decodeErrors int
	faults       int
	flushes      int
	dropped      int
	lastSequence uint64
	closed       atomic.Bool
}

// StartSession initialises a SessionMetrics instance bound to the recorder.
func (r *Recorder) StartSession(sessionID string, metadata map[string]string) *SessionMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)

	sessionLogger := r.log.With("session_id", sessionID)
	if len(clonedMetadata) > 0 {
		sessionLogger = sessionLogger.With("metadata", clonedMetadata)
	}

	r.totalSessions.Add(1)
	r.activeSessions.Add(1)

	return &SessionMetrics{
		recorder: r,
		log:      sessionLogger,

		sessionID: sessionID,
		metadata:  clonedMetadata,

		started: time.Now(),
	}
}

// RecordChunk updates counters for an accepted audio chunk.
func (s *SessionMetrics) RecordChunk(sequence uint64, size int) {
	if s == nil || size <= 0 {
		return
	}
	s.chunks++
	s.bytes += size
	s.lastSequence = sequence
	s.recorder.totalChunks.Add(1)
	s.recorder.totalBytes.Add(uint64(size))

	s.log.Debug("chunk accepted",
		"sequence", sequence,
		"bytes", size,
	)
}

// RecordUtterance stores statistics for an emitted utterance.
func (s *SessionMetrics) RecordUtterance(sequence uint64, text string, score float64) {
	if s == nil {
		return
	}
	s.utterances++
	s.recorder.totalUtterances.Add(1)

	s.log.Debug("utterance emitted",
		"sequence", sequence,
		"score", score,
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// RecordDecodeError counts a recoverable decode failure.
func (s *SessionMetrics) RecordDecodeError(sequence uint64, err error) {
	if s == nil {
		return
	}
	s.decodeErrors++
	s.recorder.totalDecodeErrors.Add(1)
	s.log.Debug("decode error", "sequence", sequence, "error", err)
}

// RecordFault counts a fatal backend fault.
func (s *SessionMetrics) RecordFault() {
	if s == nil {
		return
	}
	s.faults++
	s.recorder.totalFaults.Add(1)
}

// RecordFlush increments counters for a forced utterance end.
func (s *SessionMetrics) RecordFlush() {
	if s == nil {
		return
	}
	s.flushes++
	s.recorder.totalFlushes.Add(1)
}

// RecordDropped counts accepted chunks discarded before decoding.
func (s *SessionMetrics) RecordDropped(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.dropped += n
	s.recorder.totalDropped.Add(uint64(n))
}

// Finish logs a summary and updates active session counters.
func (s *SessionMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	defer s.recorder.activeSessions.Add(-1)

	duration := time.Since(s.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"chunks", s.chunks,
		"bytes", s.bytes,
		"last_sequence", s.lastSequence,
		"utterances", s.utterances,
		"decode_errors", s.decodeErrors,
		"faults", s.faults,
		"flushes", s.flushes,
		"dropped", s.dropped,
	}

	if err != nil {
		s.log.Error("session completed with error", append(args, "error", err)...)
		return
	}

	s.log.Info("session completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	return maps.Clone(in)
}
