package transcribe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeRecognizer replays scripted AcceptWaveform codes and results.
type fakeRecognizer struct {
	codes    []int
	results  []string
	partials []string

	fed    [][]byte
	resets int
	freed  int
}

func (f *fakeRecognizer) AcceptWaveform(buffer []byte) int {
	f.fed = append(f.fed, buffer)
	code := f.codes[0]
	f.codes = f.codes[1:]
	return code
}

func (f *fakeRecognizer) Result() string {
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeRecognizer) PartialResult() string {
	r := f.partials[0]
	f.partials = f.partials[1:]
	return r
}

func (f *fakeRecognizer) Reset() { f.resets++ }
func (f *fakeRecognizer) Free()  { f.freed++ }

// voskModelDir resolves the vosk model relative to the project root.
func voskModelDir(t *testing.T) string {
	t.Helper()
	path := filepath.Join("..", "..", "models", "vosk-model-small-en-us-0.15")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found at %s (run 'saycheese fetch-model' first): %v", path, err)
	}
	return path
}

func TestVoskDecoderFeed(t *testing.T) {
	rec := &fakeRecognizer{
		codes:    []int{0, 0, 1},
		partials: []string{`{"partial" : ""}`, `{"partial" : "say chee"}`},
		results:  []string{`{"text" : "say cheese"}`},
	}
	d := newVoskDecoder(rec, nil)

	var got []Hypothesis
	for i := 0; i < 3; i++ {
		h, err := d.Feed([]int16{1, 2})
		if err != nil {
			t.Fatalf("Feed() #%d error = %v", i, err)
		}
		got = append(got, h)
	}

	want := []Hypothesis{
		{Text: "", Final: false},
		{Text: "say chee", Final: false},
		{Text: "say cheese", Final: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hypotheses mismatch (-want +got):\n%s", diff)
	}

	// Samples are handed to vosk as little-endian PCM16.
	if diff := cmp.Diff([]byte{0x01, 0x00, 0x02, 0x00}, rec.fed[0]); diff != "" {
		t.Errorf("fed bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestVoskDecoderFeedRejected(t *testing.T) {
	d := newVoskDecoder(&fakeRecognizer{codes: []int{-1}}, nil)
	if _, err := d.Feed([]int16{0}); err == nil {
		t.Error("Feed() should fail when vosk rejects the waveform")
	}
}

func TestVoskDecoderFeedBadJSON(t *testing.T) {
	d := newVoskDecoder(&fakeRecognizer{codes: []int{1}, results: []string{`{"text":`}}, nil)
	if _, err := d.Feed([]int16{0}); err == nil {
		t.Error("Feed() should fail on malformed result JSON")
	}
}

func TestVoskDecoderCloseReleasesOnce(t *testing.T) {
	rec := &fakeRecognizer{}
	modelFreed := 0
	d := newVoskDecoder(rec, func() { modelFreed++ })

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if rec.freed != 1 || modelFreed != 1 {
		t.Errorf("freed recognizer %d times, model %d times, want 1 each", rec.freed, modelFreed)
	}

	if _, err := d.Feed([]int16{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed() after Close error = %v, want ErrClosed", err)
	}

	d.Reset()
	if rec.resets != 0 {
		t.Errorf("Reset() after Close reached the recognizer")
	}
}

func TestVoskDecoderReset(t *testing.T) {
	rec := &fakeRecognizer{}
	d := newVoskDecoder(rec, nil)
	d.Reset()
	if rec.resets != 1 {
		t.Errorf("resets = %d, want 1", rec.resets)
	}
}

func TestNewVoskDecoderMissingModel(t *testing.T) {
	_, err := NewVoskDecoder("/nonexistent/vosk-model", 16000)
	if !errors.Is(err, ErrInitFailed) {
		t.Errorf("NewVoskDecoder() error = %v, want ErrInitFailed", err)
	}
}

func TestNewVoskDecoderWithModel(t *testing.T) {
	dir := voskModelDir(t)

	d, err := NewVoskDecoder(dir, 16000)
	if err != nil {
		t.Fatalf("NewVoskDecoder(%q) error = %v", dir, err)
	}
	defer d.Close()

	// One frame of silence never produces text.
	h, err := d.Feed(make([]int16, 1600))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if h.Text != "" {
		t.Errorf("Feed(silence) text = %q, want empty", h.Text)
	}
}

func Test_parsePartialResult(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "success", data: `{"partial":"hello"}`, want: "hello"},
		{name: "empty", data: `{"partial":""}`, want: ""},
		{name: "non partial result", data: `{"text":"hello"}`, want: ""},
		{name: "invalid json", data: `{"partial":"hello"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePartialResult(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("parsePartialResult() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parsePartialResult() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_parseResult(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "success", data: `{"text":"hello"}`, want: "hello"},
		{name: "with word list", data: `{"result":[{"word":"hello"}],"text":"hello"}`, want: "hello"},
		{name: "partial result", data: `{"partial":"hello"}`, want: ""},
		{name: "invalid json", data: `{"text":"hello"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseResult() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseResult() = %v, want %v", got, tt.want)
			}
		})
	}
}
