package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-boxblur/pkg/common"
)

// Config is the complete blur run configuration.
type Config struct {
	Mode    string       `yaml:"mode"` // sequential, parallel, compare, coordinator, worker
	Workers int          `yaml:"workers"`
	Quality int          `yaml:"quality"` // JPEG quality, 1..100
	Input   InputConfig  `yaml:"input"`
	Output  OutputConfig `yaml:"output"`
	Redis   RedisConfig  `yaml:"redis"`
	MQTT    MQTTConfig   `yaml:"mqtt"`
	Log     LogConfig    `yaml:"log"`
	Stats   StatsConfig  `yaml:"stats"`
}

// InputConfig selects the source images. When Dir is set every image file
// in it is used; otherwise Pattern is expanded for 1..Count.
type InputConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
	Count   int    `yaml:"count"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"` // must contain one %d
}

// RedisConfig is only used by the coordinator and worker modes.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Prefix      string        `yaml:"prefix"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// MQTTConfig enables the run report publisher when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type StatsConfig struct {
	Dir string `yaml:"dir"`
}

const (
	ModeSequential  = "sequential"
	ModeParallel    = "parallel"
	ModeCompare     = "compare"
	ModeCoordinator = "coordinator"
	ModeWorker      = "worker"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Mode:    ModeParallel,
		Workers: common.DEFAULT_WORKERS,
		Quality: common.DEFAULT_QUALITY,
		Input: InputConfig{
			Pattern: "images/image%d.jpg",
			Count:   20,
		},
		Output: OutputConfig{
			Dir:     "res",
			Pattern: "blurred_image%d.jpg",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Prefix:      "boxblur",
			PollTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID: "boxblur",
			Topic:    "boxblur/runs",
			QoS:      1,
		},
		Log:   LogConfig{Level: "info"},
		Stats: StatsConfig{Dir: "logs"},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills in derived defaults.
func Validate(cfg *Config) error {
	switch cfg.Mode {
	case ModeSequential, ModeParallel, ModeCompare, ModeCoordinator, ModeWorker:
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return fmt.Errorf("quality must be in 1..100")
	}

	if cfg.Input.Dir == "" {
		if !strings.Contains(cfg.Input.Pattern, "%d") {
			return fmt.Errorf("input.pattern must contain %%d")
		}
		if cfg.Input.Count < 1 {
			return fmt.Errorf("input.count must be >= 1")
		}
	}
	if !strings.Contains(cfg.Output.Pattern, "%d") {
		return fmt.Errorf("output.pattern must contain %%d")
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}

	if cfg.Mode == ModeCoordinator || cfg.Mode == ModeWorker {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required in %s mode", cfg.Mode)
		}
		// BRPOP blocks in whole seconds.
		if cfg.Redis.PollTimeout < time.Second {
			cfg.Redis.PollTimeout = time.Second
		}
		if cfg.Redis.Prefix == "" {
			cfg.Redis.Prefix = "boxblur"
		}
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "boxblur/runs"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "boxblur"
		}
	}

	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	if cfg.Stats.Dir == "" {
		cfg.Stats.Dir = "logs"
	}
	return nil
}

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Paths lists the source images in processing order.
func (in InputConfig) Paths() ([]string, error) {
	if in.Dir == "" {
		paths := make([]string, 0, in.Count)
		for i := 1; i <= in.Count; i++ {
			paths = append(paths, fmt.Sprintf(in.Pattern, i))
		}
		return paths, nil
	}

	entries, err := os.ReadDir(in.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		// skip outputs of an earlier run written next to the inputs
		if strings.Contains(name, "blurred") {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(name))] {
			paths = append(paths, filepath.Join(in.Dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
