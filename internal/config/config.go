package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/endpoint"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/models"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultDemoAddr   = "127.0.0.1:8080"
	DefaultLogLevel   = "info"
	DefaultEngine     = string(engine.KindAuto)
)

// Config captures bootstrap configuration assembled from an optional YAML
// file, the injected JSON payload (`NUPI_MODULE_CONFIG`) and environment
// variables.
type Config struct {
	ListenAddr string
	DemoAddr   string
	LogLevel   string
	Engine     string

	ModelSet          string
	ModelDir          string
	AcousticModelPath string
	LanguageModelPath string
	DictionaryPath    string
	SampleRate        int
	FFTSize           int

	SilenceTimeoutMS int
	MinSpeechMS      int
	MaxUtteranceMS   int
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.DemoAddr == "" {
		c.DemoAddr = DefaultDemoAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if _, err := engine.ParseKind(c.Engine); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("config: sample_rate must be >= 0, got %d", c.SampleRate)
	}
	if c.FFTSize < 0 || (c.FFTSize > 0 && c.FFTSize&(c.FFTSize-1) != 0) {
		return fmt.Errorf("config: fft_size must be a power of two, got %d", c.FFTSize)
	}
	for name, v := range map[string]int{
		"silence_timeout_ms": c.SilenceTimeoutMS,
		"min_speech_ms":      c.MinSpeechMS,
		"max_utterance_ms":   c.MaxUtteranceMS,
	} {
		if v < 0 {
			return fmt.Errorf("config: %s must be >= 0, got %d", name, v)
		}
	}
	return nil
}

// EngineKind returns the configured backend.
func (c Config) EngineKind() engine.Kind {
	kind, err := engine.ParseKind(c.Engine)
	if err != nil {
		return engine.KindAuto
	}
	return kind
}

// RecognizerOptions projects the recognizer settings. Unset values are left
// for the model resolver.
func (c Config) RecognizerOptions() models.Options {
	return models.Options{
		ModelSet:          c.ModelSet,
		AcousticModelPath: c.AcousticModelPath,
		LanguageModelPath: c.LanguageModelPath,
		DictionaryPath:    c.DictionaryPath,
		SampleRate:        c.SampleRate,
		FFTSize:           c.FFTSize,
	}
}

// EndpointConfig projects the utterance detection settings. The sample rate
// is filled in by the session from the resolved options.
func (c Config) EndpointConfig() endpoint.Config {
	return endpoint.Config{
		SilenceTimeout: time.Duration(c.SilenceTimeoutMS) * time.Millisecond,
		MinSpeech:      time.Duration(c.MinSpeechMS) * time.Millisecond,
		MaxUtterance:   time.Duration(c.MaxUtteranceMS) * time.Millisecond,
	}
}

// Resolver builds the model resolver. An explicit model directory is tried
// before pkg-config.
func (c Config) Resolver(logger *slog.Logger) (*models.Resolver, error) {
	var lookup models.DirLookup
	if dir := strings.TrimSpace(c.ModelDir); dir != "" {
		lookup = models.ChainLookup(models.StaticLookup(dir), models.PkgConfigLookup(models.DefaultPackage))
	}
	return models.NewResolver(lookup, logger)
}
