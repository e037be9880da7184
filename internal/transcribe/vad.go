package transcribe

import "github.com/chaz8081/saycheese/internal/pcm"

type segmentEvent int

const (
	segmentIdle segmentEvent = iota
	segmentStart
	segmentContinue
	segmentEnd
)

// segmenter is an RMS voice activity detector with hysteresis. Speech starts
// after speechRun samples above speechThreshold and ends after silenceRun
// samples below silenceThreshold.
type segmenter struct {
	speechThreshold  float64
	silenceThreshold float64
	speechRun        int
	silenceRun       int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// newSegmenter returns thresholds tuned for close-talk microphones:
// ~60ms of speech to open a segment, ~600ms of silence to close it.
func newSegmenter(sampleRate int) *segmenter {
	return &segmenter{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechRun:        sampleRate * 60 / 1000,
		silenceRun:       sampleRate * 600 / 1000,
	}
}

// Push classifies one frame and reports segment transitions.
func (s *segmenter) Push(frame []int16) segmentEvent {
	level := pcm.RMS(frame)

	if s.inSpeech {
		if level < s.silenceThreshold {
			s.silenceCount += len(frame)
			if s.silenceCount >= s.silenceRun {
				s.inSpeech = false
				s.silenceCount = 0
				return segmentEnd
			}
		} else {
			s.silenceCount = 0
		}
		return segmentContinue
	}

	if level >= s.speechThreshold {
		s.speechCount += len(frame)
		if s.speechCount >= s.speechRun {
			s.inSpeech = true
			s.speechCount = 0
			return segmentStart
		}
	} else {
		s.speechCount = 0
	}
	return segmentIdle
}

// Reset clears internal state.
func (s *segmenter) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}
