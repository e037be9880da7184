// Package transcribe provides streaming speech decoders.
//
// Supported backends:
//   - vosk: Vosk/Kaldi streaming recognizer with partial results (default)
//   - whisper: whisper.cpp via Go bindings, segmented by voice activity
package transcribe

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chaz8081/saycheese/internal/config"
)

var (
	// ErrInitFailed is returned when a decoder cannot load its model.
	ErrInitFailed = errors.New("transcribe: decoder init failed")
	// ErrClosed is returned by Feed after Close.
	ErrClosed = errors.New("transcribe: decoder closed")
)

// Hypothesis is the decoder's transcript for the audio seen so far. Final is
// set once the decoder considers the current segment complete.
type Hypothesis struct {
	Text  string
	Final bool
}

// Decoder converts a stream of PCM16 frames into hypotheses.
// Feed must not be called concurrently.
type Decoder interface {
	// Feed consumes one frame of mono 16-bit samples.
	Feed(samples []int16) (Hypothesis, error)
	// Reset discards any partially decoded utterance.
	Reset()
	// Close releases backend resources.
	Close() error
}

// New creates a Decoder based on the config backend setting.
func New(cfg *config.Config) (Decoder, error) {
	switch cfg.Decoder.Backend {
	case "whisper":
		modelPath := filepath.Join(cfg.Model.Dir, cfg.Model.Required[0])
		return NewWhisperDecoder(modelPath, cfg.Decoder.Language, int(cfg.Audio.SampleRate))
	case "vosk", "":
		return NewVoskDecoder(cfg.Model.Dir, float64(cfg.Audio.SampleRate))
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (supported: vosk, whisper)", ErrInitFailed, cfg.Decoder.Backend)
	}
}
