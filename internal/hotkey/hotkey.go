// Package hotkey provides a global hotkey listener using gohook.
// In "toggle" mode each press flips the speech-recognition setting.
// In "hold" mode recognition listens only while the keys are held.
package hotkey

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType is the kind of hotkey activity.
type EventType int

const (
	// EventToggle is a key press in toggle mode.
	EventToggle EventType = iota
	// EventPress is a key down in hold mode.
	EventPress
	// EventRelease is a key up in hold mode.
	EventRelease
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages a global hotkey and emits events.
type Listener struct {
	keys []string
	mode string // "hold" or "toggle"
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "v"]).
func NewListener(keys []string, mode string) *Listener {
	return &Listener{
		keys: keys,
		mode: mode,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	if l.mode == "hold" {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(EventPress) })
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.emit(EventRelease) })
	} else {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(EventToggle) })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread if the channel is full
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Target is the recognition engine the hotkey drives.
type Target interface {
	Enabled() bool
	SetEnabled(on bool)
	Resume()
	Pause()
}

// Drive applies events to t until events is closed.
func Drive(events <-chan Event, t Target) {
	for ev := range events {
		Apply(ev, t)
	}
}

// Apply maps one hotkey event onto t.
func Apply(ev Event, t Target) {
	switch ev.Type {
	case EventToggle:
		on := !t.Enabled()
		slog.Info("[hotkey] toggle speech recognition", "enabled", on)
		t.SetEnabled(on)
	case EventPress:
		slog.Debug("[hotkey] push to listen")
		t.Resume()
	case EventRelease:
		t.Pause()
	}
}
