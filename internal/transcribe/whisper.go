package transcribe

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/saycheese/internal/pcm"
)

const (
	// whisperPreRoll keeps this much audio before speech onset.
	whisperPreRoll = 0.3 // seconds
	// whisperMaxSegment forces a final hypothesis on long utterances.
	whisperMaxSegment = 10 // seconds
)

// WhisperDecoder runs whisper.cpp over speech segments. whisper has no
// partial results, so Feed returns empty partials until the voice activity
// segmenter closes a segment, then the whole segment is transcribed.
type WhisperDecoder struct {
	mu         sync.Mutex
	model      whisper.Model
	process    func(samples []float32) (string, error)
	seg        *segmenter
	buf        []int16
	preRoll    int
	maxSamples int
	closed     bool
}

var _ Decoder = (*WhisperDecoder)(nil)

// NewWhisperDecoder loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperDecoder(modelPath, language string, sampleRate int) (*WhisperDecoder, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load whisper model %q: %v", ErrInitFailed, modelPath, err)
	}

	d := newWhisperDecoder(whisperProcess(model, language), sampleRate)
	d.model = model
	return d, nil
}

func newWhisperDecoder(process func([]float32) (string, error), sampleRate int) *WhisperDecoder {
	return &WhisperDecoder{
		process:    process,
		seg:        newSegmenter(sampleRate),
		preRoll:    int(whisperPreRoll * float64(sampleRate)),
		maxSamples: whisperMaxSegment * sampleRate,
	}
}

// whisperProcess transcribes mono 16kHz float32 audio samples to text.
func whisperProcess(model whisper.Model, language string) func([]float32) (string, error) {
	return func(samples []float32) (string, error) {
		ctx, err := model.NewContext()
		if err != nil {
			return "", fmt.Errorf("transcribe: create context: %w", err)
		}
		if language != "" {
			if err := ctx.SetLanguage(language); err != nil {
				return "", fmt.Errorf("transcribe: set language %q: %w", language, err)
			}
		}

		if err := ctx.Process(samples, nil); err != nil {
			return "", fmt.Errorf("transcribe: process: %w", err)
		}

		var segments []string
		for {
			seg, err := ctx.NextSegment()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("transcribe: next segment: %w", err)
			}
			segments = append(segments, seg.Text)
		}

		return strings.TrimSpace(strings.Join(segments, " ")), nil
	}
}

// Feed buffers samples and transcribes once a speech segment ends.
func (d *WhisperDecoder) Feed(samples []int16) (Hypothesis, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Hypothesis{}, ErrClosed
	}

	ev := d.seg.Push(samples)
	d.buf = append(d.buf, samples...)

	switch ev {
	case segmentIdle:
		if extra := len(d.buf) - d.preRoll; extra > 0 {
			d.buf = append(d.buf[:0], d.buf[extra:]...)
		}
		return Hypothesis{}, nil
	case segmentStart, segmentContinue:
		if len(d.buf) < d.maxSamples {
			return Hypothesis{}, nil
		}
		slog.Debug("[whisper] max segment length reached", "samples", len(d.buf))
	}

	text, err := d.process(pcm.Int16ToFloat32(d.buf))
	d.buf = d.buf[:0]
	if err != nil {
		return Hypothesis{}, err
	}
	return Hypothesis{Text: text, Final: true}, nil
}

// Reset drops buffered audio and segmenter state.
func (d *WhisperDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = d.buf[:0]
	d.seg.Reset()
}

// Close releases the whisper model resources.
func (d *WhisperDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.buf = nil
	if d.model != nil {
		return d.model.Close()
	}
	return nil
}
