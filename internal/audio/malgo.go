package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/chaz8081/saycheese/internal/pcm"
)

// maxBuffered bounds the callback buffer; older samples are dropped when the
// reader falls behind.
const maxBuffered = 10 // seconds

// MalgoSource captures from the default microphone through miniaudio.
type MalgoSource struct{}

// Open initializes a capture device delivering 16-bit mono samples.
func (MalgoSource) Open(format Format) (Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, openError("initializing audio context", err)
	}

	s := newMalgoStream(format)

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = format.SampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceCfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, openError("initializing capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, openError("starting capture device", err)
	}

	s.ctx = ctx
	s.device = device
	return s, nil
}

// malgoStream adapts the miniaudio data callback to a blocking Read.
type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	timeout  time.Duration
	capacity int

	mu     sync.Mutex
	buf    []int16
	ready  chan struct{}
	closed bool
}

func newMalgoStream(format Format) *malgoStream {
	return &malgoStream{
		timeout:  format.ReadTimeout,
		capacity: int(format.SampleRate) * maxBuffered,
		ready:    make(chan struct{}, 1),
	}
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured frames as little-endian int16.
func (s *malgoStream) onData(_, pSample []byte, frameCount uint32) {
	samples := pcm.BytesToInt16(pSample)
	if n := int(frameCount); n < len(samples) {
		samples = samples[:n]
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, samples...)
	if over := len(s.buf) - s.capacity; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Read blocks until len(p) samples are buffered, the timeout elapses or the
// stream is closed.
func (s *malgoStream) Read(p []int16) (int, error) {
	var deadline <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, fmt.Errorf("audio: stream closed")
		}
		if len(s.buf) >= len(p) {
			n := copy(p, s.buf)
			s.buf = append(s.buf[:0], s.buf[n:]...)
			s.mu.Unlock()
			return n, nil
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-deadline:
			return 0, ErrReadTimeout
		}
	}
}

// Close stops the device and releases the audio context.
func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = nil
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}

	if s.device != nil {
		s.device.Uninit()
	}
	if s.ctx != nil {
		if err := s.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		s.ctx.Free()
	}
	return nil
}
