package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaz8081/saycheese/internal/audio"
	"github.com/chaz8081/saycheese/internal/models"
	"github.com/chaz8081/saycheese/internal/transcribe"
)

// counter tracks live instances and the high-water mark.
type counter struct {
	mu    sync.Mutex
	live  int
	max   int
	total int
}

func (c *counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live++
	c.total++
	if c.live > c.max {
		c.max = c.live
	}
}

func (c *counter) dec() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live--
}

func (c *counter) snapshot() (live, max, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.max, c.total
}

type fakeProvisioner struct {
	ready  atomic.Bool
	calls  atomic.Int32
	ensure func(ctx context.Context) error
}

func (p *fakeProvisioner) Ready(models.Descriptor) bool { return p.ready.Load() }

func (p *fakeProvisioner) EnsureModel(ctx context.Context, _ models.Descriptor) error {
	p.calls.Add(1)
	if p.ensure != nil {
		if err := p.ensure(ctx); err != nil {
			return err
		}
	}
	p.ready.Store(true)
	return nil
}

type fakeDecoders struct {
	counter
	mu       sync.Mutex
	script   []transcribe.Hypothesis
	err      error
	closeErr error
	built    []*fakeDecoder

	// before, if set, runs ahead of each build.
	before func()
}

func (f *fakeDecoders) newDecoder() (transcribe.Decoder, error) {
	if f.before != nil {
		f.before()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d := &fakeDecoder{owner: f, script: append([]transcribe.Hypothesis(nil), f.script...)}
	f.built = append(f.built, d)
	f.inc()
	return d, nil
}

func (f *fakeDecoders) last() *fakeDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}

type fakeDecoder struct {
	owner  *fakeDecoders
	mu     sync.Mutex
	script []transcribe.Hypothesis
	resets int
	closed bool
}

func (d *fakeDecoder) Feed([]int16) (transcribe.Hypothesis, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return transcribe.Hypothesis{}, transcribe.ErrClosed
	}
	if len(d.script) == 0 {
		return transcribe.Hypothesis{}, nil
	}
	h := d.script[0]
	d.script = d.script[1:]
	return h, nil
}

func (d *fakeDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

func (d *fakeDecoder) resetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.owner.dec()
	}
	return d.owner.closeErr
}

type fakeSource struct {
	counter
	failRead atomic.Bool
	openErr  error
}

func (s *fakeSource) Open(audio.Format) (audio.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.inc()
	return &fakeStream{src: s}, nil
}

type fakeStream struct {
	src  *fakeSource
	once sync.Once
}

func (s *fakeStream) Read(p []int16) (int, error) {
	time.Sleep(time.Millisecond)
	if s.src.failRead.Load() {
		return 0, nil
	}
	for i := range p {
		p[i] = 100
	}
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.once.Do(s.src.dec)
	return nil
}

type harness struct {
	ctrl *Controller
	prov *fakeProvisioner
	decs *fakeDecoders
	src  *fakeSource
}

func newHarness(t *testing.T, modelReady bool) *harness {
	t.Helper()
	h := &harness{
		prov: &fakeProvisioner{},
		decs: &fakeDecoders{},
		src:  &fakeSource{},
	}
	h.prov.ready.Store(modelReady)
	h.ctrl = NewController(Options{
		Provisioner: h.prov,
		Model:       models.Descriptor{Dir: "/models/test", Required: []string{"am/final.mdl"}},
		NewDecoder:  h.decs.newDecoder,
		Source:      h.src,
		Format:      audio.Format{SampleRate: 16000, FrameSize: 160, ReadTimeout: 10 * time.Millisecond},
	})
	t.Cleanup(h.ctrl.Shutdown)
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, c interface{ Status() Status }, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return c.Status().State == want })
}

var errBoom = errors.New("boom")
