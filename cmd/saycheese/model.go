package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chaz8081/saycheese/internal/config"
	"github.com/chaz8081/saycheese/internal/models"
)

var fetchModelCommand = &cli.Command{
	Name:  "fetch-model",
	Usage: "download the speech model if it is missing",
	Action: func(cCtx *cli.Context) error {
		cfg, closer, err := setup(cCtx)
		if err != nil {
			return err
		}
		defer closer.Close()

		desc := models.FromConfig(&cfg.Model)
		prov := models.NewProvisioner(nil, nil, cfg.Model.DownloadTimeout)
		if prov.Ready(desc) {
			fmt.Printf("  Model already installed: %s\n", desc.Dir)
			return nil
		}

		fmt.Printf("  Downloading model...\n")
		fmt.Printf("  URL: %s\n", desc.URL)
		fmt.Printf("  Destination: %s\n", desc.Dir)

		prov.Progress = printProgress
		start := time.Now()
		if err := prov.EnsureModel(cCtx.Context, desc); err != nil {
			fmt.Println()
			return err
		}
		fmt.Printf("\n  Model installed in %s\n", time.Since(start).Round(time.Second))
		return nil
	},
}

// printProgress shows download progress on one terminal line.
func printProgress(label string, written, total int64) {
	if total > 0 {
		pct := float64(written) / float64(total) * 100
		fmt.Printf("\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			label,
			float64(written)/(1024*1024),
			float64(total)/(1024*1024),
			pct)
		return
	}
	fmt.Printf("\r  %s: %.1f MB downloaded", label, float64(written)/(1024*1024))
}

var initConfigCommand = &cli.Command{
	Name:  "init-config",
	Usage: "write the default config file",
	Action: func(cCtx *cli.Context) error {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Printf("Config already exists: %s\n", config.DefaultConfigPath())
			return nil
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}
