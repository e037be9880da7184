// Package camera is a simulated camera that consumes recognized commands.
// It owns command dedup: a photo in progress or a running countdown swallows
// repeated commands from the same utterance.
package camera

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/saycheese/internal/command"
)

// Lens is the active camera.
type Lens int

const (
	Back Lens = iota
	Front
)

func (l Lens) String() string {
	if l == Front {
		return "front"
	}
	return "back"
}

// Photo is one captured frame.
type Photo struct {
	Seq   int
	Lens  Lens
	Taken time.Time
}

// DefaultCooldown is how long a capture keeps the shutter busy.
const DefaultCooldown = time.Second

type stopper interface {
	Stop() bool
}

// Camera reacts to commands. Callbacks run without the camera's lock held.
type Camera struct {
	seconds  int
	cooldown time.Duration
	onPhoto  func(Photo)
	onTick   func(remaining int)

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	mu        sync.Mutex
	lens      Lens
	seq       int
	busyUntil time.Time
	remaining int
	countdown stopper
	closed    bool
}

// New returns a camera whose timer counts down the given number of seconds.
// onPhoto is called for every captured photo.
func New(timerSeconds int, onPhoto func(Photo)) *Camera {
	return &Camera{
		seconds:  timerSeconds,
		cooldown: DefaultCooldown,
		onPhoto:  onPhoto,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// OnTick registers a callback for each second of a running countdown.
func (c *Camera) OnTick(fn func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// Lens returns the active lens.
func (c *Camera) Lens() Lens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens
}

// CountingDown reports whether a timer is running.
func (c *Camera) CountingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown != nil
}

// Handle applies one command.
func (c *Camera) Handle(cmd command.Command) {
	switch cmd {
	case command.TakePhoto:
		c.takePhoto()
	case command.StartTimer:
		c.startTimer()
	case command.SwitchCamera:
		c.switchLens()
	}
}

// busyLocked reports whether a capture or countdown is in progress.
func (c *Camera) busyLocked() bool {
	return c.closed || c.countdown != nil || c.now().Before(c.busyUntil)
}

func (c *Camera) takePhoto() {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		slog.Debug("[camera] busy, ignoring take photo")
		return
	}
	p := c.captureLocked()
	c.mu.Unlock()

	c.deliver(p)
}

func (c *Camera) startTimer() {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		slog.Debug("[camera] busy, ignoring timer")
		return
	}
	if c.seconds <= 0 {
		p := c.captureLocked()
		c.mu.Unlock()
		c.deliver(p)
		return
	}

	c.remaining = c.seconds
	c.countdown = c.afterFunc(time.Second, c.tick)
	fn, remaining := c.onTick, c.remaining
	c.mu.Unlock()

	slog.Info("[camera] countdown started", "seconds", remaining)
	if fn != nil {
		fn(remaining)
	}
}

// tick advances the countdown by one second and fires at zero.
func (c *Camera) tick() {
	c.mu.Lock()
	if c.closed || c.countdown == nil {
		c.mu.Unlock()
		return
	}

	c.remaining--
	if c.remaining > 0 {
		c.countdown = c.afterFunc(time.Second, c.tick)
		fn, remaining := c.onTick, c.remaining
		c.mu.Unlock()
		if fn != nil {
			fn(remaining)
		}
		return
	}

	c.countdown = nil
	p := c.captureLocked()
	c.mu.Unlock()

	c.deliver(p)
}

func (c *Camera) captureLocked() Photo {
	c.seq++
	taken := c.now()
	c.busyUntil = taken.Add(c.cooldown)
	return Photo{Seq: c.seq, Lens: c.lens, Taken: taken}
}

func (c *Camera) deliver(p Photo) {
	slog.Info("[camera] photo taken", "seq", p.Seq, "lens", p.Lens)
	if c.onPhoto != nil {
		c.onPhoto(p)
	}
}

func (c *Camera) switchLens() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.countdown != nil {
		return
	}
	if c.lens == Back {
		c.lens = Front
	} else {
		c.lens = Back
	}
	slog.Info("[camera] switched lens", "lens", c.lens)
}

// Close cancels a running countdown. Later commands are ignored.
func (c *Camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}
