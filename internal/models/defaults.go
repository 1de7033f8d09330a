package models

const (
	// DefaultPackage is the pkg-config package queried for the model directory.
	DefaultPackage = "pocketsphinx"
	// DefaultBaseDir is used when the model directory lookup fails.
	DefaultBaseDir    = "/usr/local/share/pocketsphinx/model"
	DefaultModelSet   = "turtle"
	DefaultSampleRate = 16000
	DefaultFFTSize    = 2048
)

// Defaults is the single table of fallbacks consulted by the Resolver.
type Defaults struct {
	Package    string
	BaseDir    string
	ModelSet   string
	SampleRate int
	FFTSize    int
}

// StandardDefaults returns the documented static defaults.
func StandardDefaults() Defaults {
	return Defaults{
		Package:    DefaultPackage,
		BaseDir:    DefaultBaseDir,
		ModelSet:   DefaultModelSet,
		SampleRate: DefaultSampleRate,
		FFTSize:    DefaultFFTSize,
	}
}
