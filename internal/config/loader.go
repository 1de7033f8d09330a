package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file and environment
// variables. Tests can override Lookup and ReadFile to inject deterministic
// inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load retrieves the adapter configuration and validates it. Later layers
// win: defaults, config file, NUPI_MODULE_CONFIG, then individual variables.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("NUPI_ADAPTER_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		raw, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
		var payload filePayload
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		payload.apply(&cfg)
	}

	if raw, ok := l.Lookup("NUPI_MODULE_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		var payload filePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode NUPI_MODULE_CONFIG: %w", err)
		}
		payload.apply(&cfg)
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_ADAPTER_DEMO_ADDR", &cfg.DemoAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_ADAPTER_ENGINE", &cfg.Engine)
	overrideString(l.Lookup, "NUPI_MODEL_SET", &cfg.ModelSet)
	overrideString(l.Lookup, "POCKETSPHINX_MODELDIR", &cfg.ModelDir)
	overrideString(l.Lookup, "POCKETSPHINX_HMM", &cfg.AcousticModelPath)
	overrideString(l.Lookup, "POCKETSPHINX_LM", &cfg.LanguageModelPath)
	overrideString(l.Lookup, "POCKETSPHINX_DICT", &cfg.DictionaryPath)
	for key, target := range map[string]*int{
		"POCKETSPHINX_SAMPLE_RATE": &cfg.SampleRate,
		"POCKETSPHINX_NFFT":        &cfg.FFTSize,
		"POCKETSPHINX_SILENCE_MS":  &cfg.SilenceTimeoutMS,
	} {
		if err := overrideInt(l.Lookup, key, target); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// filePayload is the shape shared by the YAML file and the JSON payload.
type filePayload struct {
	ListenAddr        string `json:"listen_addr" yaml:"listen_addr"`
	DemoAddr          string `json:"demo_addr" yaml:"demo_addr"`
	LogLevel          string `json:"log_level" yaml:"log_level"`
	Engine            string `json:"engine" yaml:"engine"`
	ModelSet          string `json:"model_set" yaml:"model_set"`
	ModelDir          string `json:"model_dir" yaml:"model_dir"`
	AcousticModelPath string `json:"acoustic_model_path" yaml:"acoustic_model_path"`
	LanguageModelPath string `json:"language_model_path" yaml:"language_model_path"`
	DictionaryPath    string `json:"dictionary_path" yaml:"dictionary_path"`
	SampleRate        int    `json:"sample_rate" yaml:"sample_rate"`
	FFTSize           int    `json:"fft_size" yaml:"fft_size"`
	SilenceTimeoutMS  int    `json:"silence_timeout_ms" yaml:"silence_timeout_ms"`
	MinSpeechMS       int    `json:"min_speech_ms" yaml:"min_speech_ms"`
	MaxUtteranceMS    int    `json:"max_utterance_ms" yaml:"max_utterance_ms"`
}

func (p filePayload) apply(cfg *Config) {
	for _, f := range []struct {
		value  string
		target *string
	}{
		{p.ListenAddr, &cfg.ListenAddr},
		{p.DemoAddr, &cfg.DemoAddr},
		{p.LogLevel, &cfg.LogLevel},
		{p.Engine, &cfg.Engine},
		{p.ModelSet, &cfg.ModelSet},
		{p.ModelDir, &cfg.ModelDir},
		{p.AcousticModelPath, &cfg.AcousticModelPath},
		{p.LanguageModelPath, &cfg.LanguageModelPath},
		{p.DictionaryPath, &cfg.DictionaryPath},
	} {
		if f.value != "" {
			*f.target = f.value
		}
	}
	for _, f := range []struct {
		value  int
		target *int
	}{
		{p.SampleRate, &cfg.SampleRate},
		{p.FFTSize, &cfg.FFTSize},
		{p.SilenceTimeoutMS, &cfg.SilenceTimeoutMS},
		{p.MinSpeechMS, &cfg.MinSpeechMS},
		{p.MaxUtteranceMS, &cfg.MaxUtteranceMS},
	} {
		if f.value != 0 {
			*f.target = f.value
		}
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}
