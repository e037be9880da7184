// Package notify shows desktop notifications for engine status and photos.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/chaz8081/saycheese/internal/camera"
	"github.com/chaz8081/saycheese/internal/engine"
)

const appName = "SayCheese"

// Notifier sends desktop notifications. Repeated statuses with the same
// indicator and reason are shown once.
type Notifier struct {
	enabled bool
	send    func(title, message, icon string) error

	mu   sync.Mutex
	last string
}

// New creates a Notifier. A disabled notifier only logs.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled, send: beeep.Notify}
}

// Status reports an engine status change.
func (n *Notifier) Status(s engine.Status) {
	title := s.Indicator()
	key := title + "\x00" + s.Reason

	n.mu.Lock()
	if key == n.last {
		n.mu.Unlock()
		return
	}
	n.last = key
	n.mu.Unlock()

	n.notify(title, statusMessage(s))
}

func statusMessage(s engine.Status) string {
	switch s.State {
	case engine.Listening:
		return `Say "cheese" to take a photo`
	case engine.Error:
		if s.Inactive != engine.ReasonNone {
			return fmt.Sprintf("%s: %s", s.Inactive, s.Reason)
		}
		return s.Reason
	}
	if s.Inactive != engine.ReasonNone {
		return "Speech recognition " + string(s.Inactive)
	}
	return "Speech recognition " + s.State.String()
}

// Photo reports a captured photo.
func (n *Notifier) Photo(p camera.Photo) {
	n.notify("Photo", fmt.Sprintf("Photo #%d taken with the %s camera", p.Seq, p.Lens))
}

// Countdown reports a timer tick.
func (n *Notifier) Countdown(remaining int) {
	n.notify("Timer", fmt.Sprintf("%d...", remaining))
}

// Error shows an error message.
func (n *Notifier) Error(msg string) {
	n.notify("Error", msg)
}

func (n *Notifier) notify(title, message string) {
	slog.Debug("[notify]", "title", title, "message", message)
	if !n.enabled {
		return
	}
	// Notification failures are not critical.
	if err := n.send(appName+": "+title, message, ""); err != nil {
		slog.Debug("[notify] failed", "error", err)
	}
}
