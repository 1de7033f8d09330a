package models

import (
	"errors"
	"fmt"
	"os"
)

// Options is the recognizer configuration a session is built from. Zero values
// mean "not specified" and are filled in by the Resolver.
type Options struct {
	ModelSet          string `json:"model_set,omitempty" yaml:"model_set,omitempty"`
	AcousticModelPath string `json:"acoustic_model_path,omitempty" yaml:"acoustic_model_path,omitempty"`
	LanguageModelPath string `json:"language_model_path,omitempty" yaml:"language_model_path,omitempty"`
	DictionaryPath    string `json:"dictionary_path,omitempty" yaml:"dictionary_path,omitempty"`
	SampleRate        int    `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	FFTSize           int    `json:"fft_size,omitempty" yaml:"fft_size,omitempty"`
}

// Merge returns a copy of o with every non-zero field of override applied.
func (o Options) Merge(override Options) Options {
	if override.ModelSet != "" {
		o.ModelSet = override.ModelSet
	}
	if override.AcousticModelPath != "" {
		o.AcousticModelPath = override.AcousticModelPath
	}
	if override.LanguageModelPath != "" {
		o.LanguageModelPath = override.LanguageModelPath
	}
	if override.DictionaryPath != "" {
		o.DictionaryPath = override.DictionaryPath
	}
	if override.SampleRate != 0 {
		o.SampleRate = override.SampleRate
	}
	if override.FFTSize != 0 {
		o.FFTSize = override.FFTSize
	}
	return o
}

func (o Options) hasAllPaths() bool {
	return o.AcousticModelPath != "" && o.LanguageModelPath != "" && o.DictionaryPath != ""
}

// Validate checks that the options are fully populated.
func (o Options) Validate() error {
	if !o.hasAllPaths() {
		return fmt.Errorf("%w: acoustic model, language model and dictionary paths are required", ErrConfiguration)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be > 0, got %d", ErrConfiguration, o.SampleRate)
	}
	if o.FFTSize <= 0 || o.FFTSize&(o.FFTSize-1) != 0 {
		return fmt.Errorf("%w: fft_size must be a positive power of two, got %d", ErrConfiguration, o.FFTSize)
	}
	return nil
}

// Verify reports every resolved resource that is missing on disk.
func (o Options) Verify() error {
	var errs []error
	for _, res := range []struct {
		name string
		path string
	}{
		{"acoustic model", o.AcousticModelPath},
		{"language model", o.LanguageModelPath},
		{"dictionary", o.DictionaryPath},
	} {
		if _, err := os.Stat(res.path); err != nil {
			errs = append(errs, fmt.Errorf("models: %s %q: %w", res.name, res.path, err))
		}
	}
	return errors.Join(errs...)
}
