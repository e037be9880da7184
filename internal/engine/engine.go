package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/chaz8081/saycheese/internal/audio"
	"github.com/chaz8081/saycheese/internal/command"
	"github.com/chaz8081/saycheese/internal/config"
	"github.com/chaz8081/saycheese/internal/models"
	"github.com/chaz8081/saycheese/internal/transcribe"
)

// Engine is the handle a host application holds. It adds the user's
// enabled setting on top of the controller: while disabled, Start and
// Resume are ignored and the status reports ReasonDisabled.
type Engine struct {
	ctrl    *Controller
	enabled atomic.Bool
}

// New wraps ctrl. enabled mirrors the persisted setting.
func New(ctrl *Controller, enabled bool) *Engine {
	e := &Engine{ctrl: ctrl}
	e.enabled.Store(enabled)
	return e
}

// NewFromConfig wires the controller from config: model provisioning on
// prov, the configured decoder backend, audio source and command keywords.
func NewFromConfig(cfg *config.Config, prov *models.Provisioner) (*Engine, error) {
	src, err := audio.NewSource(&cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	ctrl := NewController(Options{
		Provisioner: prov,
		Model:       models.FromConfig(&cfg.Model),
		NewDecoder:  func() (transcribe.Decoder, error) { return transcribe.New(cfg) },
		Source:      src,
		Format:      audio.FormatFromConfig(&cfg.Audio),
		Classifier:  command.FromConfig(&cfg.Commands),
	})
	return New(ctrl, cfg.Enabled), nil
}

// OnCommand registers the command callback.
func (e *Engine) OnCommand(fn func(command.Command)) {
	e.ctrl.OnCommand(fn)
}

// OnStatus registers the status callback.
func (e *Engine) OnStatus(fn func(Status)) {
	e.ctrl.OnStatus(func(s Status) { fn(e.decorate(s)) })
}

// Status returns the current status.
func (e *Engine) Status() Status {
	return e.decorate(e.ctrl.Status())
}

func (e *Engine) decorate(s Status) Status {
	if !e.enabled.Load() && (s.State == Stopped || s.State == Uninitialized) {
		s.Inactive = ReasonDisabled
	}
	return s
}

// Enabled reports the current setting.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// SetEnabled applies the setting toggle: enabling starts recognition,
// disabling stops it whatever the current state.
func (e *Engine) SetEnabled(on bool) {
	if e.enabled.Swap(on) == on {
		return
	}
	slog.Info("[engine] speech recognition toggled", "enabled", on)
	if on {
		e.ctrl.Start()
		return
	}
	e.ctrl.Stop()
	e.ctrl.notify()
}

// Start begins listening unless disabled.
func (e *Engine) Start() {
	if !e.enabled.Load() {
		e.ctrl.notify()
		return
	}
	e.ctrl.Start()
}

// Resume restarts capture unless disabled.
func (e *Engine) Resume() {
	if e.enabled.Load() {
		e.ctrl.Resume()
	}
}

// Pause stops capture and keeps the model loaded.
func (e *Engine) Pause() { e.ctrl.Pause() }

// Stop releases capture and the decoder.
func (e *Engine) Stop() { e.ctrl.Stop() }

// Shutdown releases everything. The engine cannot be restarted.
func (e *Engine) Shutdown() { e.ctrl.Shutdown() }
