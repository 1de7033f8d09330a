package models

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrLookupEmpty is returned when a lookup succeeds but yields no directory.
var ErrLookupEmpty = errors.New("models: model directory lookup returned nothing")

// DirLookup returns the base directory that model sets are rooted at. Lookups
// are treated as unreliable: any error makes the Resolver fall back to its
// defaults.
type DirLookup func(ctx context.Context) (string, error)

// PkgConfigLookup asks pkg-config for the model directory of pkg.
func PkgConfigLookup(pkg string) DirLookup {
	return func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, "pkg-config", "--variable=modeldir", pkg).Output()
		if err != nil {
			return "", fmt.Errorf("models: pkg-config %s: %w", pkg, err)
		}
		dir := strings.TrimSpace(string(out))
		if dir == "" {
			return "", ErrLookupEmpty
		}
		return dir, nil
	}
}

// StaticLookup always returns dir.
func StaticLookup(dir string) DirLookup {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(dir) == "" {
			return "", ErrLookupEmpty
		}
		return strings.TrimSpace(dir), nil
	}
}

// ChainLookup tries each lookup in turn and returns the first directory found.
func ChainLookup(lookups ...DirLookup) DirLookup {
	return func(ctx context.Context) (string, error) {
		var errs []error
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			dir, err := lookup(ctx)
			if err == nil && dir != "" {
				return dir, nil
			}
			if err == nil {
				err = ErrLookupEmpty
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return "", ErrLookupEmpty
		}
		return "", errors.Join(errs...)
	}
}
