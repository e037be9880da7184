package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a 16-bit mono WAV file as a capture stream. The file's
// sample rate must match the requested format. When Realtime is set, reads
// are paced to the frame duration like a live microphone.
type WAVSource struct {
	Path     string
	Realtime bool
}

// Open validates the WAV header and positions the decoder at the PCM data.
func (w WAVSource) Open(format Format) (Stream, error) {
	f, err := os.Open(w.Path)
	if err != nil {
		return nil, openError("opening wav file", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, &CaptureError{Kind: ErrDeviceUnavailable, Op: "opening wav file", Err: fmt.Errorf("%s is not a valid WAV file", w.Path)}
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 || dec.SampleRate != format.SampleRate {
		f.Close()
		return nil, &CaptureError{
			Kind: ErrDeviceUnavailable,
			Op:   "opening wav file",
			Err: fmt.Errorf("%s: want %d Hz mono 16-bit, got %d Hz %d channels %d-bit",
				w.Path, format.SampleRate, dec.SampleRate, dec.NumChans, dec.BitDepth),
		}
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, &CaptureError{Kind: ErrDeviceUnavailable, Op: "seeking wav data", Err: err}
	}

	s := &wavStream{
		file: f,
		dec:  dec,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(format.SampleRate)},
			SourceBitDepth: 16,
		},
	}
	if w.Realtime {
		s.pace = format.FrameDuration()
	}
	return s, nil
}

type wavStream struct {
	file *os.File
	dec  *wav.Decoder
	buf  *goaudio.IntBuffer
	pace time.Duration
	last time.Time
}

// Read returns io.EOF once the file is exhausted.
func (s *wavStream) Read(p []int16) (int, error) {
	if s.pace > 0 {
		if wait := s.pace - time.Since(s.last); !s.last.IsZero() && wait > 0 {
			time.Sleep(wait)
		}
		s.last = time.Now()
	}

	if cap(s.buf.Data) < len(p) {
		s.buf.Data = make([]int, len(p))
	}
	s.buf.Data = s.buf.Data[:len(p)]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		p[i] = int16(s.buf.Data[i])
	}
	return n, nil
}

func (s *wavStream) Close() error {
	return s.file.Close()
}
