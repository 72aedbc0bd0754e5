// Package config loads the YAML settings file used by the mixer3d-play demo
// command: output device parameters, the distance/attenuation model, and
// logging. The core mixer package takes none of this as a dependency — it is
// strictly a concern of the command-line hosts.
package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/kemarsound/mixer3d/mixer"
)

// Audio configures the output stream a host command opens.
type Audio struct {
	SampleRate int `yaml:"sample_rate"`
	BlockSize  int `yaml:"block_size"`
}

// Distance mirrors mixer.DistanceModel in YAML-friendly form.
type Distance struct {
	Model        string  `yaml:"model"` // "inverse", "linear", or "exponential"
	RefDistance  float64 `yaml:"ref_distance"`
	MaxDistance  float64 `yaml:"max_distance"`
	Rolloff      float64 `yaml:"rolloff"`
	SpeedOfSound float64 `yaml:"speed_of_sound"`
}

// Logging configures the charmbracelet/log output of the mixer3d-play demo
// command.
type Logging struct {
	Level   string `yaml:"level"` // "debug", "info", "warn", "error"
	JSON    bool   `yaml:"json"`
	Capture string `yaml:"capture_dir"` // if non-empty, wav captures are written here
}

// Config is the root of mixer3d.yaml.
type Config struct {
	Audio    Audio    `yaml:"audio"`
	Distance Distance `yaml:"distance"`
	Logging  Logging  `yaml:"logging"`
}

// Default returns the configuration the demo commands use when no file is
// given: 44.1kHz, 512-frame blocks, inverse-distance falloff, info logging.
func Default() Config {
	return Config{
		Audio: Audio{SampleRate: 44100, BlockSize: 512},
		Distance: Distance{
			Model:        "inverse",
			RefDistance:  1.0,
			MaxDistance:  1000.0,
			Rolloff:      1.0,
			SpeedOfSound: 343.0,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads and parses a YAML config file, filling in Default() for any
// field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that would otherwise fail obscurely deep inside
// the mixer or a host audio device.
func (c Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("config: audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	switch c.Distance.Model {
	case "inverse", "linear", "exponential":
	default:
		return fmt.Errorf("config: distance.model must be one of inverse/linear/exponential, got %q", c.Distance.Model)
	}
	return nil
}

// BuildLogger constructs the charmbracelet/log logger described by c.Logging:
// text or JSON formatting and the configured minimum level, writing to
// stderr.
func (c Config) BuildLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if c.Logging.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	logger.SetLevel(parseLevel(c.Logging.Level))
	return logger
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// DistanceModel converts the YAML-friendly Distance block into the value
// mixer.Context.SetDistanceModel expects.
func (c Config) DistanceModel() mixer.DistanceModel {
	var model mixer.AttenuationModel
	switch c.Distance.Model {
	case "linear":
		model = mixer.Linear
	case "exponential":
		model = mixer.Exponential
	default:
		model = mixer.Inverse
	}
	return mixer.DistanceModel{
		Model:        model,
		RefDistance:  c.Distance.RefDistance,
		MaxDistance:  c.Distance.MaxDistance,
		Rolloff:      c.Distance.Rolloff,
		SpeedOfSound: c.Distance.SpeedOfSound,
	}
}
