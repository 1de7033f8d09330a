package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// ErrConfiguration marks failures that leave a session without a usable
// resource set.
var ErrConfiguration = errors.New("models: configuration error")

// Resolver turns partial Options into a fully populated set.
type Resolver struct {
	Lookup   DirLookup
	Defaults Defaults
	Manifest Manifest
	Logger   *slog.Logger
}

// NewResolver returns a Resolver using the standard defaults and the embedded
// manifest. A nil lookup falls back to pkg-config.
func NewResolver(lookup DirLookup, logger *slog.Logger) (*Resolver, error) {
	manifest, err := DefaultManifest()
	if err != nil {
		return nil, err
	}
	defaults := StandardDefaults()
	if lookup == nil {
		lookup = PkgConfigLookup(defaults.Package)
	}
	return &Resolver{
		Lookup:   lookup,
		Defaults: defaults,
		Manifest: manifest,
		Logger:   logger,
	}, nil
}

// Resolve fills every missing option. Explicit values always win. The lookup
// may block (it can spawn a process), so callers run it off their critical
// path.
func (r *Resolver) Resolve(ctx context.Context, in Options) (Options, error) {
	log := r.logger()
	out := in
	if out.ModelSet == "" {
		out.ModelSet = r.Defaults.ModelSet
	}

	var set ModelSet
	if out.ModelSet != "" {
		var ok bool
		set, ok = r.Manifest.ModelSets[out.ModelSet]
		if !ok && !out.hasAllPaths() {
			return Options{}, fmt.Errorf("%w: unknown model set %q", ErrConfiguration, out.ModelSet)
		}
	}

	if !out.hasAllPaths() {
		if set.AcousticModel == "" {
			return Options{}, fmt.Errorf("%w: no model set selected and paths are incomplete", ErrConfiguration)
		}
		base, err := r.baseDir(ctx)
		if err != nil {
			return Options{}, err
		}
		if out.AcousticModelPath == "" {
			out.AcousticModelPath = filepath.Join(base, set.AcousticModel)
		}
		if out.LanguageModelPath == "" {
			out.LanguageModelPath = filepath.Join(base, set.LanguageModel)
		}
		if out.DictionaryPath == "" {
			out.DictionaryPath = filepath.Join(base, set.Dictionary)
		}
	}

	if out.SampleRate == 0 {
		out.SampleRate = firstPositive(set.SampleRate, r.Defaults.SampleRate)
	}
	if out.FFTSize == 0 {
		out.FFTSize = firstPositive(set.FFTSize, r.Defaults.FFTSize)
	}

	if err := out.Validate(); err != nil {
		return Options{}, err
	}

	log.Debug("recognizer options resolved",
		"model_set", out.ModelSet,
		"hmm", out.AcousticModelPath,
		"lm", out.LanguageModelPath,
		"dict", out.DictionaryPath,
		"sample_rate", out.SampleRate,
		"fft_size", out.FFTSize,
	)
	return out, nil
}

func (r *Resolver) baseDir(ctx context.Context) (string, error) {
	log := r.logger()
	if r.Lookup != nil {
		dir, err := r.Lookup(ctx)
		if err == nil && dir != "" {
			return dir, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err == nil {
			err = ErrLookupEmpty
		}
		log.Warn("model directory lookup failed; using default base directory",
			"error", err,
			"base_dir", r.Defaults.BaseDir,
		)
	}
	if r.Defaults.BaseDir == "" {
		return "", fmt.Errorf("%w: model directory lookup failed and no default base directory is configured", ErrConfiguration)
	}
	return r.Defaults.BaseDir, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default().With("component", "models.Resolver")
	}
	return r.Logger.With("component", "models.Resolver")
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
