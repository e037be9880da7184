package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/chaz8081/saycheese/internal/audio"
	"github.com/chaz8081/saycheese/internal/command"
	"github.com/chaz8081/saycheese/internal/models"
	"github.com/chaz8081/saycheese/internal/transcribe"
)

var wavFlag = &cli.StringFlag{
	Name:     "wav",
	Usage:    "16 kHz mono 16-bit WAV file to decode",
	Required: true,
}

var transcribeCommand = &cli.Command{
	Name:  "transcribe",
	Usage: "decode a WAV file and print hypotheses and commands",
	Flags: []cli.Flag{wavFlag},
	Action: func(cCtx *cli.Context) error {
		cfg, closer, err := setup(cCtx)
		if err != nil {
			return err
		}
		defer closer.Close()

		if !models.NewProvisioner(nil, nil, 0).Ready(models.FromConfig(&cfg.Model)) {
			return fmt.Errorf("model not found at %s (run 'saycheese fetch-model' first)", cfg.Model.Dir)
		}

		dec, err := transcribe.New(cfg)
		if err != nil {
			return err
		}
		defer dec.Close()

		loop, err := audio.Open(audio.WAVSource{Path: cCtx.String(wavFlag.Name)}, dec, audio.FormatFromConfig(&cfg.Audio))
		if err != nil {
			return err
		}

		classifier := command.FromConfig(&cfg.Commands)
		err = loop.Run(func(h transcribe.Hypothesis) {
			kind := "partial"
			if h.Final {
				kind = "final"
			}
			cmd := classifier.Classify(h.Text)
			if cmd == command.None {
				fmt.Printf("%-7s %q\n", kind, h.Text)
				return
			}
			fmt.Printf("%-7s %q -> %s\n", kind, h.Text, cmd)
		}, func() bool {
			select {
			case <-cCtx.Context.Done():
				return false
			default:
				return true
			}
		})
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	},
}
