package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of one app instance. Zero values mean
// built-in defaults; the capability section is optional and its absence
// switches the analyzers to their offline heuristics.
type Config struct {
	GraphPath string `yaml:"graph"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Capability struct {
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		APIKeyEnv      string  `yaml:"api_key_env"`
		TimeoutSeconds float64 `yaml:"timeout_seconds"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"capability"`

	Trace struct {
		Endpoint       string  `yaml:"endpoint"`
		TimeoutSeconds float64 `yaml:"timeout_seconds"`
	} `yaml:"trace"`

	Engine struct {
		MaxAttempts       int     `yaml:"max_attempts"`
		BaseDelaySeconds  float64 `yaml:"base_delay_seconds"`
		RunTimeoutSeconds float64 `yaml:"run_timeout_seconds"`
		MaxParallel       int     `yaml:"max_parallel"`
	} `yaml:"engine"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// LoadConfig reads a YAML runtime configuration file. An empty path yields
// the all-defaults Config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func seconds(v, fallback float64) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v * float64(time.Second))
}
