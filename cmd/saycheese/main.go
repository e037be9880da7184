package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chaz8081/saycheese/internal/config"
	"github.com/chaz8081/saycheese/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "saycheese",
		Usage: "hands-free camera voice commands",
		Flags: []cli.Flag{
			configFlag,
			debugFlag,
		},
		Commands: []*cli.Command{
			listenCommand,
			fetchModelCommand,
			transcribeCommand,
			initConfigCommand,
		},
		DefaultCommand: listenCommand.Name,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "saycheese: %v\n", err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to config file (default: ~/.config/saycheese/config.yaml)",
}

var debugFlag = &cli.BoolFlag{
	Name:  "debug",
	Usage: "enable debug log",
	Value: false,
}

// setup loads and validates the config and installs the default logger.
// The returned closer releases the log file, if any.
func setup(cCtx *cli.Context) (*config.Config, io.Closer, error) {
	cfg, err := loadConfig(cCtx.String(configFlag.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if cCtx.Bool(debugFlag.Name) {
		level = slog.LevelDebug
	}

	var closer io.Closer = io.NopCloser(nil)
	log := logger.New(os.Stderr, level)
	if cfg.LogFile != "" {
		fileLog, file, err := logger.NewFileLogger(cfg.LogFile, level)
		if err != nil {
			return nil, nil, err
		}
		log, closer = fileLog, file
	}
	slog.SetDefault(log)

	return cfg, closer, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	slog.Info("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== saycheese ===")
	fmt.Printf("  Model:    %s (%s)\n", cfg.Model.Dir, cfg.Decoder.Backend)
	fmt.Printf("  Audio:    %s, %dHz, %d samples/frame\n", cfg.Audio.Backend, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	fmt.Printf("  Commands: photo=%s timer=%s switch=%s\n",
		strings.Join(cfg.Commands.TakePhoto, ","),
		strings.Join(cfg.Commands.StartTimer, ","),
		strings.Join(cfg.Commands.SwitchCamera, ","))
	if len(cfg.Hotkey.Keys) > 0 {
		fmt.Printf("  Hotkey:   %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	}
	fmt.Printf("  Enabled:  %v\n", cfg.Enabled)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=================")
}
