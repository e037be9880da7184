// Package models provisions the on-disk speech model a decoder loads from.
//
// A model is described by a Descriptor. EnsureModel is idempotent: when every
// required artifact is already present it returns without touching the
// network, otherwise it downloads and installs the model and re-checks.
package models

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/chaz8081/saycheese/internal/config"
)

var (
	// ErrNetwork covers transport failures, non-200 responses and interrupted bodies.
	ErrNetwork = errors.New("models: network error")
	// ErrIO covers filesystem failures while installing the model.
	ErrIO = errors.New("models: io error")
	// ErrIncomplete means the install finished but required artifacts are missing.
	ErrIncomplete = errors.New("models: model incomplete")
)

// Format values for Descriptor.Format.
const (
	FormatZip  = "zip"
	FormatFile = "file"
)

// Descriptor identifies a model: where it lives, where it comes from and which
// relative paths must exist for it to be usable.
type Descriptor struct {
	Dir         string
	URL         string
	ArchiveRoot string
	Required    []string
	Format      string
}

// FromConfig builds a Descriptor from the model section of the config.
func FromConfig(cfg *config.ModelConfig) Descriptor {
	return Descriptor{
		Dir:         cfg.Dir,
		URL:         cfg.URL,
		ArchiveRoot: cfg.ArchiveRoot,
		Required:    append([]string(nil), cfg.Required...),
		Format:      cfg.Format,
	}
}

// ProvisionError is returned by EnsureModel. Kind is one of ErrNetwork, ErrIO
// or ErrIncomplete; errors.Is matches both Kind and the underlying cause.
type ProvisionError struct {
	Kind error
	Op   string
	Err  error
}

func (e *ProvisionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ProvisionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Ready reports whether the model directory and every required artifact exist.
func Ready(fs afero.Fs, desc Descriptor) bool {
	return len(missing(fs, desc)) == 0
}

func missing(fs afero.Fs, desc Descriptor) []string {
	if ok, _ := afero.DirExists(fs, desc.Dir); !ok {
		return append([]string{desc.Dir}, desc.Required...)
	}
	var out []string
	for _, rel := range desc.Required {
		if ok, _ := afero.Exists(fs, filepath.Join(desc.Dir, rel)); !ok {
			out = append(out, rel)
		}
	}
	return out
}
