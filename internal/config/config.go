package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultModelURL points at the small English Vosk model archive.
	DefaultModelURL = "https://github.com/NikitaBerezhnyj/SayCheese/raw/main/assets/vosk-model-small-en-us-0.15.zip"
	// DefaultModelName is both the archive root folder and the local directory name.
	DefaultModelName = "vosk-model-small-en-us-0.15"
)

// Config holds all application configuration.
type Config struct {
	Enabled  bool           `yaml:"enabled"`
	LogLevel string         `yaml:"log_level"`
	LogFile  string         `yaml:"log_file,omitempty"`
	Model    ModelConfig    `yaml:"model"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Audio    AudioConfig    `yaml:"audio"`
	Commands CommandsConfig `yaml:"commands"`
	Camera   CameraConfig   `yaml:"camera"`
	Hotkey   HotkeyConfig   `yaml:"hotkey"`
	Notify   bool           `yaml:"notify"`
	Dialogs  bool           `yaml:"dialogs"`
}

// ModelConfig describes where the decoder model lives and how to fetch it.
type ModelConfig struct {
	Dir             string        `yaml:"dir"`
	URL             string        `yaml:"url"`
	ArchiveRoot     string        `yaml:"archive_root"`
	Format          string        `yaml:"format"` // "zip" or "file"
	Required        []string      `yaml:"required"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// DecoderConfig selects the speech decoder backend.
type DecoderConfig struct {
	Backend  string `yaml:"backend"` // "vosk" or "whisper"
	Language string `yaml:"language"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	Backend     string        `yaml:"backend"` // "malgo", "portaudio" or "wav"
	SampleRate  uint32        `yaml:"sample_rate"`
	FrameSize   int           `yaml:"frame_size"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WAVPath     string        `yaml:"wav_path,omitempty"`
}

// CommandsConfig maps each command to the keywords that trigger it.
type CommandsConfig struct {
	TakePhoto    []string `yaml:"take_photo"`
	StartTimer   []string `yaml:"start_timer"`
	SwitchCamera []string `yaml:"switch_camera"`
}

// CameraConfig configures the simulated camera used by the host binary.
type CameraConfig struct {
	TimerSeconds int `yaml:"timer_seconds"`
}

// HotkeyConfig holds hotkey-related settings. An empty key list disables the hotkey.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "toggle" or "hold"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "saycheese")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory models are installed under.
func DefaultModelsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "saycheese", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Enabled:  true,
		LogLevel: "info",
		Model: ModelConfig{
			Dir:         filepath.Join(DefaultModelsDir(), DefaultModelName),
			URL:         DefaultModelURL,
			ArchiveRoot: DefaultModelName,
			Format:      "zip",
			Required: []string{
				"am/final.mdl",
				"conf/mfcc.conf",
				"graph/HCLr.fst",
			},
			DownloadTimeout: 10 * time.Minute,
		},
		Decoder: DecoderConfig{
			Backend:  "vosk",
			Language: "en",
		},
		Audio: AudioConfig{
			Backend:     "malgo",
			SampleRate:  16000,
			FrameSize:   1600,
			ReadTimeout: 500 * time.Millisecond,
		},
		Commands: CommandsConfig{
			TakePhoto:  []string{"cheese"},
			StartTimer: []string{"timer"},
		},
		Camera: CameraConfig{
			TimerSeconds: 3,
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "v"},
			Mode: "toggle",
		},
		Notify:  true,
		Dialogs: false,
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Model.Dir = expandTilde(cfg.Model.Dir)
	cfg.Audio.WAVPath = expandTilde(cfg.Audio.WAVPath)
	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Model.Dir == "" {
		return fmt.Errorf("model.dir must not be empty")
	}
	if len(c.Model.Required) == 0 {
		return fmt.Errorf("model.required must list at least one artifact")
	}
	switch c.Model.Format {
	case "zip", "file":
	default:
		return fmt.Errorf("model.format must be \"zip\" or \"file\", got %q", c.Model.Format)
	}
	if c.Model.DownloadTimeout < 0 {
		return fmt.Errorf("model.download_timeout must not be negative")
	}

	switch c.Decoder.Backend {
	case "vosk":
	case "whisper":
		if c.Model.Format != "file" {
			return fmt.Errorf("decoder.backend \"whisper\" requires model.format \"file\"")
		}
	default:
		return fmt.Errorf("decoder.backend must be \"vosk\" or \"whisper\", got %q", c.Decoder.Backend)
	}

	switch c.Audio.Backend {
	case "malgo", "portaudio":
	case "wav":
		if c.Audio.WAVPath == "" {
			return fmt.Errorf("audio.wav_path must be set when audio.backend is \"wav\"")
		}
	default:
		return fmt.Errorf("audio.backend must be malgo, portaudio, or wav, got %q", c.Audio.Backend)
	}
	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be > 0")
	}
	if c.Audio.ReadTimeout <= 0 {
		return fmt.Errorf("audio.read_timeout must be > 0")
	}

	if len(c.Commands.TakePhoto) == 0 && len(c.Commands.StartTimer) == 0 && len(c.Commands.SwitchCamera) == 0 {
		return fmt.Errorf("commands must define at least one keyword")
	}

	if c.Camera.TimerSeconds < 0 {
		return fmt.Errorf("camera.timer_seconds must not be negative")
	}

	if len(c.Hotkey.Keys) > 0 {
		switch c.Hotkey.Mode {
		case "hold", "toggle":
		default:
			return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WriteDefault writes the default config to DefaultConfigPath. If a config
// file already exists it is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	header := "# saycheese configuration\n# Voice commands: say \"cheese\" to take a photo, \"timer\" to start the countdown.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a config log level to a slog level. Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
