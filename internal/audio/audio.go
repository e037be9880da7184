// Package audio captures 16-bit mono PCM frames and feeds them to a decoder.
//
// Backends:
//   - malgo: miniaudio capture device (default)
//   - portaudio: PortAudio blocking stream
//   - wav: replays a 16-bit mono WAV file
package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/saycheese/internal/config"
)

var (
	// ErrDeviceUnavailable is returned when no capture device can be opened.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrReadFailed ends a capture loop when the stream fails.
	ErrReadFailed = errors.New("audio: read failed")
	// ErrReadTimeout is returned by Stream.Read when no full frame arrived in time.
	// It is not fatal.
	ErrReadTimeout = errors.New("audio: read timeout")
)

// Format describes the PCM stream a Source must deliver.
type Format struct {
	SampleRate  uint32
	FrameSize   int // samples per frame
	ReadTimeout time.Duration
}

// FormatFromConfig returns the capture format from the audio config section.
func FormatFromConfig(cfg *config.AudioConfig) Format {
	return Format{
		SampleRate:  cfg.SampleRate,
		FrameSize:   cfg.FrameSize,
		ReadTimeout: cfg.ReadTimeout,
	}
}

// FrameDuration is the wall-clock length of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)
}

// Stream is an open capture stream. Read fills p with mono samples and
// returns how many were written; it returns ErrReadTimeout when no frame
// arrived within the read timeout.
type Stream interface {
	Read(p []int16) (int, error)
	Close() error
}

// Source opens capture streams.
type Source interface {
	Open(format Format) (Stream, error)
}

// CaptureError reports a capture failure. Kind is one of the package
// sentinels; errors.Is matches both Kind and the underlying cause.
type CaptureError struct {
	Kind error
	Op   string
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// openError classifies a backend open failure.
func openError(op string, err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	kind := ErrDeviceUnavailable
	msg := strings.ToLower(err.Error())
	if errors.Is(err, os.ErrPermission) ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "not permitted") {
		kind = ErrPermissionDenied
	}
	return &CaptureError{Kind: kind, Op: op, Err: err}
}

// NewSource returns the Source selected by cfg.Backend.
func NewSource(cfg *config.AudioConfig) (Source, error) {
	switch cfg.Backend {
	case "malgo", "":
		return &MalgoSource{}, nil
	case "portaudio":
		return &PortAudioSource{}, nil
	case "wav":
		return &WAVSource{Path: cfg.WAVPath, Realtime: true}, nil
	default:
		return nil, fmt.Errorf("audio: unknown backend %q (supported: malgo, portaudio, wav)", cfg.Backend)
	}
}
