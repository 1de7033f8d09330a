package adapterinfo

import "strconv"

// Metadata captures static identifiers for the adapter. Centralising the values
// makes it easy to clone this repository for new adapters.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current adapter.
var Info = Metadata{
	Name:        "Nupi PocketSphinx Local STT",
	BinaryName:  "plugin-stt-local-pocketsphinx",
	Slug:        "stt-local-pocketsphinx",
	Description: "Local continuous speech recognition adapter backed by PocketSphinx.",
	GeneratorID: "stt-local-pocketsphinx",
	Version:     "0.3.0",
}

// Version returns the adapter version string.
func Version() string {
	return Info.Version
}

// UtteranceMetadata produces the standard metadata payload attached
// to emitted utterances.
func UtteranceMetadata(modelSet string, sampleRate int) map[string]string {
	return map[string]string{
		"generator":   Info.GeneratorID,
		"model_set":   modelSet,
		"sample_rate": strconv.Itoa(sampleRate),
	}
}
