package models

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed embedded_manifest.yaml
var embeddedManifest []byte

// ModelSet lists the resources of one acoustic/language model bundle relative
// to the model directory.
type ModelSet struct {
	DisplayName   string `yaml:"display_name" json:"display_name"`
	AcousticModel string `yaml:"acoustic_model" json:"acoustic_model"`
	LanguageModel string `yaml:"language_model" json:"language_model"`
	Dictionary    string `yaml:"dictionary" json:"dictionary"`
	SampleRate    int    `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	FFTSize       int    `yaml:"fft_size,omitempty" json:"fft_size,omitempty"`
}

// Manifest is the catalogue of known model sets.
type Manifest struct {
	ModelSets map[string]ModelSet `yaml:"model_sets" json:"model_sets"`
}

// DefaultManifest parses the manifest embedded in the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}

// LoadManifest decodes and validates a YAML manifest.
func LoadManifest(r io.Reader) (Manifest, error) {
	var manifest Manifest
	if err := yaml.NewDecoder(r).Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("models: decode manifest: %w", err)
	}
	for name, set := range manifest.ModelSets {
		if set.AcousticModel == "" || set.LanguageModel == "" || set.Dictionary == "" {
			return Manifest{}, fmt.Errorf("models: manifest entry %q is incomplete", name)
		}
	}
	return manifest, nil
}

// Names returns the model set names in lexical order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.ModelSets))
	for name := range m.ModelSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
