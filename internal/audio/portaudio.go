package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures from the default input device through PortAudio.
type PortAudioSource struct{}

// Open starts a blocking PortAudio input stream with one frame per buffer.
func (PortAudioSource) Open(format Format) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, openError("initializing portaudio", err)
	}

	s := &portaudioStream{buf: make([]int16, format.FrameSize)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(format.SampleRate), format.FrameSize, s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, openError("opening input stream", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, openError("starting input stream", err)
	}
	s.stream = stream
	return s, nil
}

type portaudioStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// Read blocks until PortAudio delivers the next buffer.
func (s *portaudioStream) Read(p []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return 0, fmt.Errorf("audio: stream closed")
	}
	if err := s.stream.Read(); err != nil {
		return 0, err
	}
	return copy(p, s.buf), nil
}

// Close stops the stream and terminates PortAudio.
func (s *portaudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	stream.Stop()
	err := stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}
