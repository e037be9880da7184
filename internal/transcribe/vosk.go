package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/chaz8081/saycheese/internal/pcm"
)

// voskRecognizer is the subset of *vosk.VoskRecognizer the decoder uses.
type voskRecognizer interface {
	AcceptWaveform(buffer []byte) int
	Result() string
	PartialResult() string
	Reset()
	Free()
}

// VoskDecoder wraps one vosk recognizer bound to a model and sample rate.
type VoskDecoder struct {
	mu        sync.Mutex
	rec       voskRecognizer
	freeModel func()
	closed    bool
}

var _ Decoder = (*VoskDecoder)(nil)

// NewVoskDecoder loads the vosk model in modelDir.
// The caller must call Close() when done.
func NewVoskDecoder(modelDir string, sampleRate float64) (*VoskDecoder, error) {
	if _, err := os.Stat(modelDir); err != nil {
		return nil, fmt.Errorf("%w: vosk model %q: %v", ErrInitFailed, modelDir, err)
	}

	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelDir)
	if err != nil {
		return nil, fmt.Errorf("%w: load vosk model %q: %v", ErrInitFailed, modelDir, err)
	}

	rec, err := vosk.NewRecognizer(model, sampleRate)
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("%w: create vosk recognizer: %v", ErrInitFailed, err)
	}

	return newVoskDecoder(rec, model.Free), nil
}

func newVoskDecoder(rec voskRecognizer, freeModel func()) *VoskDecoder {
	return &VoskDecoder{rec: rec, freeModel: freeModel}
}

// Feed passes samples to the recognizer. A segment boundary detected by vosk
// yields a final hypothesis; otherwise the current partial is returned.
func (d *VoskDecoder) Feed(samples []int16) (Hypothesis, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Hypothesis{}, ErrClosed
	}

	switch n := d.rec.AcceptWaveform(pcm.Int16ToBytes(samples)); {
	case n > 0:
		text, err := parseResult(d.rec.Result())
		if err != nil {
			return Hypothesis{}, fmt.Errorf("transcribe: parse vosk result: %w", err)
		}
		return Hypothesis{Text: text, Final: true}, nil
	case n == 0:
		text, err := parsePartialResult(d.rec.PartialResult())
		if err != nil {
			return Hypothesis{}, fmt.Errorf("transcribe: parse vosk partial result: %w", err)
		}
		return Hypothesis{Text: text}, nil
	default:
		return Hypothesis{}, fmt.Errorf("transcribe: vosk rejected waveform (code %d)", n)
	}
}

// Reset discards the utterance in progress.
func (d *VoskDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.rec.Reset()
	}
}

// Close frees the recognizer and model. It is safe to call more than once.
func (d *VoskDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.rec.Free()
	if d.freeModel != nil {
		d.freeModel()
	}
	return nil
}

type voskResult struct {
	Text string `json:"text"`
}

type voskPartialResult struct {
	Partial string `json:"partial"`
}

func parseResult(data string) (string, error) {
	var r voskResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return "", err
	}
	return r.Text, nil
}

func parsePartialResult(data string) (string, error) {
	var r voskPartialResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return "", err
	}
	return r.Partial, nil
}
