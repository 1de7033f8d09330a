// Package endpoint finds utterance boundaries in a stream of 16-bit PCM
// samples. It classifies fixed-size frames as speech or silence against a
// noise floor learned during a short calibration window and reports when an
// utterance starts, which samples belong to it, and when it ends.
package endpoint

import (
	"math"
	"time"
)

const (
	DefaultFrameDuration       = 10 * time.Millisecond
	DefaultCalibrationDuration = 300 * time.Millisecond
	DefaultSilenceTimeout      = time.Second
	DefaultMinSpeech           = 100 * time.Millisecond
	DefaultMaxUtterance        = 30 * time.Second
	DefaultMinThreshold        = 0.01
	DefaultThresholdRatio      = 3.0
)

// Config tunes the detector. Zero durations and thresholds take the package
// defaults, except CalibrationDuration where a negative value disables
// calibration.
type Config struct {
	SampleRate          int
	FrameDuration       time.Duration
	CalibrationDuration time.Duration
	SilenceTimeout      time.Duration
	MinSpeech           time.Duration
	MaxUtterance        time.Duration
	// MinThreshold is the lowest normalised RMS level counted as speech.
	MinThreshold float64
	// ThresholdRatio scales the calibrated noise floor.
	ThresholdRatio float64
}

// DefaultConfig returns the detector defaults for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{SampleRate: sampleRate}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.CalibrationDuration == 0 {
		c.CalibrationDuration = DefaultCalibrationDuration
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = DefaultMinSpeech
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = DefaultMinThreshold
	}
	if c.ThresholdRatio <= 0 {
		c.ThresholdRatio = DefaultThresholdRatio
	}
	return c
}

func (c Config) samples(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(c.SampleRate) * int64(d) / int64(time.Second))
}

// State is the detector's position in the calibrate/wait/listen cycle.
type State int

const (
	Calibrating State = iota
	Waiting
	Listening
)

func (s State) String() string {
	switch s {
	case Calibrating:
		return "calibrating"
	case Waiting:
		return "waiting"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}

// ActionKind says what the decoder should do next.
type ActionKind int

const (
	// Start opens a new utterance.
	Start ActionKind = iota
	// Audio carries samples of the open utterance.
	Audio
	// End closes the utterance; a hypothesis should be produced.
	End
	// Discard closes the utterance without a hypothesis (too little speech).
	Discard
)

func (k ActionKind) String() string {
	switch k {
	case Start:
		return "start"
	case Audio:
		return "audio"
	case End:
		return "end"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Action is one step emitted by the detector, in temporal order.
type Action struct {
	Kind    ActionKind
	Samples []int16
}

// Detector is an energy based endpointer. It is not safe for concurrent use.
type Detector struct {
	cfg Config

	frameSize         int
	calibrationFrames int
	silenceLimit      int
	minSpeech         int
	maxUtterance      int

	state     State
	pending   []int16
	threshold float64

	calibrated int
	floorSum   float64
	speech     int
	silence    int
	uttSamples int
}

// New creates a detector.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	d := &Detector{
		cfg:          cfg,
		frameSize:    max(cfg.samples(cfg.FrameDuration), 1),
		silenceLimit: cfg.samples(cfg.SilenceTimeout),
		minSpeech:    cfg.samples(cfg.MinSpeech),
		maxUtterance: cfg.samples(cfg.MaxUtterance),
	}
	if cfg.CalibrationDuration > 0 {
		d.calibrationFrames = max(cfg.samples(cfg.CalibrationDuration)/d.frameSize, 1)
	}
	d.Reset()
	return d
}

// Reset forgets all state, including calibration.
func (d *Detector) Reset() {
	d.pending = d.pending[:0]
	d.calibrated = 0
	d.floorSum = 0
	d.threshold = d.cfg.MinThreshold
	d.resetUtterance()
	if d.calibrationFrames > 0 {
		d.state = Calibrating
	} else {
		d.state = Waiting
	}
}

// State reports the current detector state.
func (d *Detector) State() State { return d.state }

// Threshold reports the normalised RMS level above which frames count as speech.
func (d *Detector) Threshold() float64 { return d.threshold }

// FrameSize is the number of samples per analysis frame.
func (d *Detector) FrameSize() int { return d.frameSize }

// Feed consumes samples and returns the resulting actions. Samples that do
// not fill a whole frame are kept for the next call.
func (d *Detector) Feed(samples []int16) []Action {
	var actions []Action
	d.pending = append(d.pending, samples...)

	offset := 0
	for len(d.pending)-offset >= d.frameSize {
		frame := d.pending[offset : offset+d.frameSize]
		offset += d.frameSize
		actions = d.frame(actions, frame)
	}
	d.pending = append(d.pending[:0], d.pending[offset:]...)
	return actions
}

// Flush ends an open utterance immediately. Buffered samples that do not fill
// a frame are forwarded first.
func (d *Detector) Flush() []Action {
	if d.state != Listening {
		d.pending = d.pending[:0]
		return nil
	}
	var actions []Action
	if len(d.pending) > 0 {
		actions = appendAudio(actions, d.pending)
		d.uttSamples += len(d.pending)
		d.pending = d.pending[:0]
	}
	return d.finish(actions)
}

func (d *Detector) frame(actions []Action, frame []int16) []Action {
	level := rms(frame)

	switch d.state {
	case Calibrating:
		d.floorSum += level
		d.calibrated++
		if d.calibrated >= d.calibrationFrames {
			floor := d.floorSum / float64(d.calibrated)
			d.threshold = math.Max(d.cfg.MinThreshold, floor*d.cfg.ThresholdRatio)
			d.state = Waiting
		}
		return actions

	case Waiting:
		if level < d.threshold {
			return actions
		}
		d.state = Listening
		d.resetUtterance()
		actions = append(actions, Action{Kind: Start})
		fallthrough

	case Listening:
		actions = appendAudio(actions, frame)
		d.uttSamples += len(frame)
		if level >= d.threshold {
			d.speech += len(frame)
			d.silence = 0
		} else {
			d.silence += len(frame)
		}
		if d.silence >= d.silenceLimit || d.uttSamples >= d.maxUtterance {
			actions = d.finish(actions)
		}
	}
	return actions
}

func (d *Detector) finish(actions []Action) []Action {
	kind := End
	if d.speech < d.minSpeech {
		kind = Discard
	}
	actions = append(actions, Action{Kind: kind})
	d.state = Waiting
	d.resetUtterance()
	return actions
}

func (d *Detector) resetUtterance() {
	d.speech = 0
	d.silence = 0
	d.uttSamples = 0
}

func appendAudio(actions []Action, samples []int16) []Action {
	if n := len(actions); n > 0 && actions[n-1].Kind == Audio {
		actions[n-1].Samples = append(actions[n-1].Samples, samples...)
		return actions
	}
	return append(actions, Action{Kind: Audio, Samples: append([]int16(nil), samples...)})
}

// rms returns the root mean square of frame normalised to [0, 1].
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
