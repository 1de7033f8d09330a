package session

import (
	"errors"
	"fmt"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/endpoint"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/events"
)

func (s *Session) run() {
	defer close(s.workerDone)

	var fault error
	for {
		j, ok := s.next()
		if !ok {
			break
		}
		if err := s.process(j); err != nil && fault == nil {
			fault = err
		}
		if j.done != nil {
			close(j.done)
		}
	}
	if fault != nil {
		s.release(fault)
	}
}

// next blocks for the next job. It returns false once the session has left
// Ready, after releasing anyone waiting on dropped jobs.
func (s *Session) next() (job, bool) {
	s.mu.Lock()
	for len(s.queue) == 0 && s.state == Ready {
		s.cond.Wait()
	}
	if s.state != Ready {
		dropped := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, j := range dropped {
			if j.done != nil {
				close(j.done)
			}
		}
		if n := countChunks(dropped); n > 0 {
			s.metrics.RecordDropped(n)
			s.log.Warn("discarded queued chunks on close", "count", n)
		}
		return job{}, false
	}
	j := s.queue[0]
	s.queue[0] = job{}
	s.queue = s.queue[1:]
	s.mu.Unlock()
	return j, true
}

func countChunks(jobs []job) int {
	n := 0
	for _, j := range jobs {
		if !j.flush {
			n++
		}
	}
	return n
}

// process decodes one job and returns a non-nil error only for faults that
// end the session.
func (s *Session) process(j job) error {
	var actions []endpoint.Action
	if j.flush {
		s.metrics.RecordFlush()
		actions = s.detector.Flush()
	} else {
		calibrating := s.detector.State() == endpoint.Calibrating
		actions = s.detector.Feed(s.pcm.Decode(j.data))
		if calibrating && s.detector.State() != endpoint.Calibrating {
			s.log.Debug("noise floor calibrated",
				"sequence", j.seq,
				"threshold", s.detector.Threshold(),
				"frame_samples", s.detector.FrameSize(),
			)
		}
	}

	for _, a := range actions {
		err := s.apply(j.seq, a)
		if err == nil {
			continue
		}
		if s.fail(j.seq, err) {
			return err
		}
	}
	return nil
}

func (s *Session) apply(seq uint64, a endpoint.Action) error {
	switch a.Kind {
	case endpoint.Start:
		if err := s.eng.StartUtterance(); err != nil {
			return err
		}
		s.inUtterance = true

	case endpoint.Audio:
		if !s.inUtterance {
			return nil
		}
		if err := s.eng.ProcessAudio(s.ctx, a.Samples); err != nil {
			s.abandon()
			return err
		}

	case endpoint.End, endpoint.Discard:
		if !s.inUtterance {
			return nil
		}
		s.inUtterance = false
		hyp, err := s.eng.EndUtterance(s.ctx)
		if err != nil {
			return err
		}
		if a.Kind == endpoint.Discard || hyp.Empty() {
			s.log.Debug("utterance dropped", "sequence", seq, "discarded", a.Kind == endpoint.Discard)
			return nil
		}
		s.utterances++
		if hyp.UtteranceID == "" {
			hyp.UtteranceID = fmt.Sprintf("%09d", s.utterances)
		}
		if s.publish(events.UtteranceEvent(seq, hyp)) {
			s.metrics.RecordUtterance(seq, hyp.Text, hyp.Score)
		}
	}
	return nil
}

// abandon ends a broken utterance without reporting its hypothesis.
func (s *Session) abandon() {
	s.inUtterance = false
	if _, err := s.eng.EndUtterance(s.ctx); err != nil {
		s.log.Debug("end abandoned utterance", "error", err)
	}
}

// fail reports err for chunk seq and reports whether it ends the session.
func (s *Session) fail(seq uint64, err error) bool {
	decodeErr := &DecodeError{Sequence: seq, Err: err}

	if !errors.Is(err, engine.ErrResourceFault) {
		if s.ctx.Err() != nil {
			return false
		}
		s.metrics.RecordDecodeError(seq, err)
		s.publish(events.ErrorEvent(seq, decodeErr))
		s.log.Warn("decode failed", "sequence", seq, "error", err)
		return false
	}

	s.metrics.RecordFault()
	s.mu.Lock()
	if s.state == Ready {
		s.emitter.Publish(events.ErrorEvent(seq, decodeErr))
		s.state = Closed
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	s.cancel()
	s.log.Error("decoder fault; closing session", "sequence", seq, "error", err)
	return true
}

// publish emits ev unless the session has left Ready.
func (s *Session) publish(ev events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return false
	}
	return s.emitter.Publish(ev)
}
