package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/saycheese/internal/camera"
	"github.com/chaz8081/saycheese/internal/dialog"
	"github.com/chaz8081/saycheese/internal/engine"
	"github.com/chaz8081/saycheese/internal/hotkey"
	"github.com/chaz8081/saycheese/internal/models"
	"github.com/chaz8081/saycheese/internal/notify"
)

var listenCommand = &cli.Command{
	Name:   "listen",
	Usage:  "listen for voice commands and drive the simulated camera",
	Action: runListen,
}

func runListen(cCtx *cli.Context) error {
	cfg, closer, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer closer.Close()

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notify.New(cfg.Notify)

	prov := models.NewProvisioner(nil, nil, cfg.Model.DownloadTimeout)
	eng, err := engine.NewFromConfig(cfg, prov)
	if err != nil {
		notifier.Error(err.Error())
		return err
	}

	cam := camera.New(cfg.Camera.TimerSeconds, notifier.Photo)
	cam.OnTick(notifier.Countdown)
	defer cam.Close()

	prompts := make(chan string, 1)
	eng.OnCommand(cam.Handle)
	eng.OnStatus(func(s engine.Status) {
		slog.Info("[saycheese] status", "indicator", s.Indicator(), "state", s.State, "reason", s.Reason, "inactive", s.Inactive)
		notifier.Status(s)
		if cfg.Dialogs && s.State == engine.Error && s.Inactive == engine.ReasonNetwork {
			select {
			case prompts <- s.Reason:
			default:
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		askRetry(gctx, prompts, eng, notifier)
		return nil
	})

	if len(cfg.Hotkey.Keys) > 0 {
		listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode)
		// gohook only returns after End, so neither goroutine joins the group.
		go listener.Start()
		go hotkey.Drive(listener.Events(), eng)
		g.Go(func() error {
			<-gctx.Done()
			listener.Stop()
			return nil
		})
		slog.Info("Hotkey listener ready", "keys", strings.Join(cfg.Hotkey.Keys, "+"), "mode", cfg.Hotkey.Mode)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		eng.Shutdown()
		return nil
	})

	eng.Start()
	if cfg.Hotkey.Mode == "hold" && len(cfg.Hotkey.Keys) > 0 {
		// Push-to-listen: load the model now, capture only while held.
		eng.Pause()
	}
	if cfg.Enabled {
		slog.Info(`Ready! Say "cheese" to take a photo. Ctrl+C to quit.`)
	}

	err = g.Wait()
	slog.Info("Goodbye!")
	return err
}

// askRetry shows the retry/disable prompt for provisioning network failures.
func askRetry(ctx context.Context, prompts <-chan string, eng *engine.Engine, notifier *notify.Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-prompts:
			choice, err := dialog.AskRetry(reason)
			if err != nil {
				slog.Warn("[saycheese] retry prompt failed", "error", err)
				notifier.Error(reason)
				continue
			}
			slog.Info("[saycheese] retry prompt", "choice", choice)
			switch choice {
			case dialog.Retry:
				eng.Start()
			case dialog.Disable:
				eng.SetEnabled(false)
			}
		}
	}
}

