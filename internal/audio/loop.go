package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chaz8081/saycheese/internal/transcribe"
)

var errLoopReused = errors.New("audio: capture loop already ran")

// Loop reads frames from one open stream and feeds them to a decoder.
// It owns the stream: the stream is closed exactly once, either when Run
// returns or by Close for a loop that never ran.
type Loop struct {
	stream Stream
	dec    transcribe.Decoder
	format Format

	ran       atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens a stream on src and returns a Loop bound to dec.
// Open failures are returned as *CaptureError with no loop.
func Open(src Source, dec transcribe.Decoder, format Format) (*Loop, error) {
	if format.FrameSize <= 0 {
		return nil, fmt.Errorf("audio: invalid frame size %d", format.FrameSize)
	}
	stream, err := src.Open(format)
	if err != nil {
		return nil, openError("open stream", err)
	}
	return &Loop{stream: stream, dec: dec, format: format}, nil
}

// Run captures until shouldContinue returns false or the stream fails.
// shouldContinue is polled once per iteration, so a stop request is
// honoured within one read timeout. Non-empty hypotheses are passed to
// onHypothesis on the calling goroutine.
func (l *Loop) Run(onHypothesis func(transcribe.Hypothesis), shouldContinue func() bool) error {
	if !l.ran.CompareAndSwap(false, true) {
		return errLoopReused
	}
	defer l.Close()

	buf := make([]int16, l.format.FrameSize)
	for shouldContinue() {
		n, err := l.stream.Read(buf)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return &CaptureError{Kind: ErrReadFailed, Op: "read frame", Err: err}
		}
		if n <= 0 {
			return &CaptureError{Kind: ErrReadFailed, Op: fmt.Sprintf("read returned %d samples", n)}
		}

		frame := make([]int16, n)
		copy(frame, buf[:n])

		h, err := l.dec.Feed(frame)
		if err != nil {
			return fmt.Errorf("audio: decode frame: %w", err)
		}
		if h.Text == "" {
			continue
		}
		slog.Debug("[audio] hypothesis", "text", h.Text, "final", h.Final)
		onHypothesis(h)
	}
	return nil
}

// Close releases the stream. It is safe to call more than once and
// concurrently with a finished Run.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.stream.Close()
		if l.closeErr != nil {
			slog.Warn("[audio] closing stream", "error", l.closeErr)
		}
	})
	return l.closeErr
}
