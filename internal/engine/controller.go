// Package engine runs the recognition lifecycle: it provisions the model,
// owns the decoder and the capture loop, and turns hypotheses into commands.
//
// All transition methods are safe for concurrent use, never return errors and
// are gated by the current state. Failures surface as the Error state with a
// reason; nothing is retried until Start is called again.
//
// Callbacks registered with OnCommand and OnStatus run in order on a single
// dispatcher goroutine. They may call back into the controller.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chaz8081/saycheese/internal/audio"
	"github.com/chaz8081/saycheese/internal/command"
	"github.com/chaz8081/saycheese/internal/models"
	"github.com/chaz8081/saycheese/internal/transcribe"
)

// Provisioner makes the model available on disk.
type Provisioner interface {
	Ready(desc models.Descriptor) bool
	EnsureModel(ctx context.Context, desc models.Descriptor) error
}

// Options wires a Controller to its collaborators.
type Options struct {
	Provisioner Provisioner
	Model       models.Descriptor
	// NewDecoder builds a decoder once the model is on disk.
	NewDecoder func() (transcribe.Decoder, error)
	Source     audio.Source
	Format     audio.Format
	// Classifier maps hypotheses to commands. Nil uses the default keywords.
	Classifier *command.Classifier
}

// Controller is the recognition state machine. At most one capture loop and
// one decoder exist at any time.
type Controller struct {
	opts Options

	// ops serializes transitions including their joins, so a new capture loop
	// or decoder is never created before the previous one is released.
	ops sync.Mutex

	mu        sync.Mutex
	state     State
	reason    string
	inactive  InactiveReason
	listen    bool // latest lifecycle intent
	closed    bool
	dec       transcribe.Decoder
	session   *session
	provision *provisioning
	seq       uint64
	onCommand func(command.Command)
	onStatus  func(Status)

	events *queue
	quit   chan struct{}
}

// session is one capture loop run.
type session struct {
	id   uint64
	stop atomic.Bool
	done chan struct{}
}

// provisioning is one in-flight model download.
type provisioning struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController returns a controller in the Uninitialized state.
func NewController(opts Options) *Controller {
	if opts.Classifier == nil {
		opts.Classifier = command.Default()
	}
	c := &Controller{
		opts:   opts,
		events: newQueue(),
		quit:   make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// OnCommand registers the command callback.
func (c *Controller) OnCommand(fn func(command.Command)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommand = fn
}

// OnStatus registers the status callback. It receives every transition.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{State: c.state, Reason: c.reason, Inactive: c.inactive}
}

// Start begins listening. From Uninitialized, Stopped or Error without a
// decoder it provisions the model first. It is a no-op while Listening or
// DownloadingModel.
func (c *Controller) Start() {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.listen = true

	switch c.state {
	case Listening, DownloadingModel:
		return
	case ModelReady, Paused:
		c.startCaptureLocked()
	default:
		if c.dec != nil {
			c.startCaptureLocked()
			return
		}
		c.initLocked()
	}
}

// Resume restarts capture from Paused or ModelReady with a fresh utterance.
func (c *Controller) Resume() {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.listen = true

	switch c.state {
	case Paused, ModelReady:
		c.startCaptureLocked()
	}
}

// Pause stops capture and keeps the decoder loaded. It returns once the
// capture loop has exited.
func (c *Controller) Pause() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.listen = false
	if c.state != Listening {
		c.mu.Unlock()
		return
	}
	s := c.stopCaptureLocked()
	c.setStateLocked(Paused, "", ReasonNone)
	c.mu.Unlock()

	join(s)
}

// Stop stops capture, cancels provisioning and closes the decoder. A later
// Start initializes again.
func (c *Controller) Stop() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.listen = false
	if c.state == Uninitialized || c.state == Stopped {
		c.mu.Unlock()
		return
	}
	s, p, dec := c.releaseLocked()
	c.setStateLocked(Stopped, "", ReasonNone)
	c.mu.Unlock()

	c.finishRelease(s, p, dec)
}

// Shutdown releases everything and rejects further transitions. It is safe
// from any state, including mid-download, and may be called more than once.
func (c *Controller) Shutdown() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listen = false
	s, p, dec := c.releaseLocked()
	c.setStateLocked(Stopped, "", ReasonNone)
	c.mu.Unlock()

	c.finishRelease(s, p, dec)
	close(c.quit)
	slog.Info("[engine] shut down")
}

// releaseLocked detaches the capture session, provisioning and decoder and
// signals them to stop. finishRelease waits for them outside the lock.
func (c *Controller) releaseLocked() (*session, *provisioning, transcribe.Decoder) {
	s := c.stopCaptureLocked()
	p := c.provision
	c.provision = nil
	if p != nil {
		p.cancel()
	}
	dec := c.dec
	c.dec = nil
	return s, p, dec
}

func (c *Controller) finishRelease(s *session, p *provisioning, dec transcribe.Decoder) {
	join(s)
	if p != nil {
		<-p.done
	}
	if dec != nil {
		if err := dec.Close(); err != nil {
			slog.Warn("[engine] closing decoder", "error", err)
		}
	}
}

// initLocked loads the decoder when the model is present, otherwise starts
// provisioning in the background.
func (c *Controller) initLocked() {
	if c.opts.Provisioner.Ready(c.opts.Model) {
		dec, err := c.opts.NewDecoder()
		if err != nil {
			c.failLocked(err, ReasonNotReady)
			return
		}
		c.dec = dec
		c.setStateLocked(ModelReady, "", ReasonNone)
		c.startCaptureLocked()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &provisioning{cancel: cancel, done: make(chan struct{})}
	c.provision = p
	c.setStateLocked(DownloadingModel, "", ReasonLoading)
	go c.provisionModel(ctx, p)
}

func (c *Controller) provisionModel(ctx context.Context, p *provisioning) {
	defer close(p.done)
	defer p.cancel()

	err := c.opts.Provisioner.EnsureModel(ctx, c.opts.Model)
	var dec transcribe.Decoder
	if err == nil && ctx.Err() == nil {
		dec, err = c.opts.NewDecoder()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provision != p {
		// Stopped or shut down while provisioning.
		if dec != nil {
			if err := dec.Close(); err != nil {
				slog.Warn("[engine] closing decoder", "error", err)
			}
		}
		return
	}
	c.provision = nil

	if err != nil {
		reason := ReasonNotReady
		if errors.Is(err, models.ErrNetwork) {
			reason = ReasonNetwork
		}
		c.failLocked(err, reason)
		return
	}

	c.dec = dec
	c.setStateLocked(ModelReady, "", ReasonNone)
	if c.listen {
		c.startCaptureLocked()
	}
}

// startCaptureLocked opens the audio stream and spawns the capture loop.
// The caller guarantees no session is live.
func (c *Controller) startCaptureLocked() {
	c.dec.Reset()

	loop, err := audio.Open(c.opts.Source, c.dec, c.opts.Format)
	if err != nil {
		c.failLocked(err, ReasonNone)
		return
	}

	c.seq++
	s := &session{id: c.seq, done: make(chan struct{})}
	c.session = s
	c.setStateLocked(Listening, "", ReasonNone)
	go c.capture(s, loop)
}

func (c *Controller) capture(s *session, loop *audio.Loop) {
	err := loop.Run(
		func(h transcribe.Hypothesis) {
			c.events.push(event{kind: evHypothesis, session: s.id, hyp: h})
		},
		func() bool { return !s.stop.Load() },
	)
	close(s.done)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		return
	}
	c.session = nil
	if err != nil {
		c.failLocked(err, ReasonNone)
		return
	}
	c.setStateLocked(ModelReady, "", ReasonNone)
}

func (c *Controller) stopCaptureLocked() *session {
	s := c.session
	c.session = nil
	if s != nil {
		s.stop.Store(true)
	}
	return s
}

// join waits for a capture loop to observe its stop flag and exit.
func join(s *session) {
	if s != nil {
		<-s.done
	}
}

func (c *Controller) failLocked(err error, inactive InactiveReason) {
	slog.Error("[engine] recognition failed", "state", c.state, "error", err)
	c.setStateLocked(Error, err.Error(), inactive)
}

func (c *Controller) setStateLocked(state State, reason string, inactive InactiveReason) {
	if state != c.state {
		slog.Debug("[engine] transition", "from", c.state, "to", state)
	}
	c.state = state
	c.reason = reason
	c.inactive = inactive
	c.events.push(event{kind: evStatus, status: c.statusLocked()})
}

// notify re-publishes the current status.
func (c *Controller) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events.push(event{kind: evStatus, status: c.statusLocked()})
}

// dispatch delivers status changes and commands in order. After Shutdown
// it flushes pending status events and exits.
func (c *Controller) dispatch() {
	for {
		select {
		case <-c.events.signal:
			for _, ev := range c.events.drain() {
				c.handle(ev)
			}
		case <-c.quit:
			for _, ev := range c.events.drain() {
				if ev.kind == evStatus {
					c.handle(ev)
				}
			}
			return
		}
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evStatus:
		c.mu.Lock()
		fn := c.onStatus
		c.mu.Unlock()
		if fn != nil {
			fn(ev.status)
		}

	case evHypothesis:
		c.mu.Lock()
		current := c.session != nil && c.session.id == ev.session && c.state == Listening
		fn := c.onCommand
		c.mu.Unlock()
		if !current {
			return
		}
		cmd := c.opts.Classifier.Classify(ev.hyp.Text)
		if cmd == command.None {
			return
		}
		slog.Info("[engine] command", "command", cmd, "text", ev.hyp.Text, "final", ev.hyp.Final)
		if fn != nil {
			fn(cmd)
		}
	}
}
