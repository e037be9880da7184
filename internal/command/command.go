// Package command maps recognized speech to camera commands by keyword
// spotting.
//
// Classification runs on partial hypotheses as well as final ones, so a
// command can fire while the speaker is still mid-utterance. Suppressing
// repeats while an action is in progress is left to the consumer.
package command

import (
	"strings"

	"github.com/chaz8081/saycheese/internal/config"
)

// Command is a discrete camera action derived from a transcript.
type Command int

const (
	None Command = iota
	TakePhoto
	StartTimer
	SwitchCamera
)

func (c Command) String() string {
	switch c {
	case TakePhoto:
		return "take_photo"
	case StartTimer:
		return "start_timer"
	case SwitchCamera:
		return "switch_camera"
	default:
		return "none"
	}
}

// Rule binds a command to the keywords that trigger it.
type Rule struct {
	Command  Command
	Keywords []string
}

// Classifier matches lowercase keywords against transcripts. Rules are
// checked in order and the first match wins.
type Classifier struct {
	rules []Rule
}

var defaultClassifier = NewClassifier([]Rule{
	{Command: TakePhoto, Keywords: []string{"cheese"}},
	{Command: StartTimer, Keywords: []string{"timer"}},
})

// NewClassifier builds a Classifier. Keywords are lowercased and blanks dropped.
func NewClassifier(rules []Rule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		var kws []string
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 || r.Command == None {
			continue
		}
		c.rules = append(c.rules, Rule{Command: r.Command, Keywords: kws})
	}
	return c
}

// FromConfig builds a Classifier from the commands section of the config.
// Take-photo keywords are checked before timer keywords, timer before switch.
func FromConfig(cfg *config.CommandsConfig) *Classifier {
	return NewClassifier([]Rule{
		{Command: TakePhoto, Keywords: cfg.TakePhoto},
		{Command: StartTimer, Keywords: cfg.StartTimer},
		{Command: SwitchCamera, Keywords: cfg.SwitchCamera},
	})
}

// Classify returns the command for text, or None.
func (c *Classifier) Classify(text string) Command {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Command
			}
		}
	}
	return None
}

// Classify uses the built-in keywords: "cheese" takes a photo, "timer"
// starts the countdown.
func Classify(text string) Command {
	return defaultClassifier.Classify(text)
}

// Default returns the classifier behind the package-level Classify.
func Default() *Classifier {
	return defaultClassifier
}
