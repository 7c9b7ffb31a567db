package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/pyrun/internal/harness"
	"github.com/michaelbrown/pyrun/internal/sandbox"
)

type RuntimeConfig struct {
	Kind    string        `mapstructure:"kind"` // "docker" or "process"
	Image   string        `mapstructure:"image"`
	Python  string        `mapstructure:"python"`
	Memory  string        `mapstructure:"memory"`
	CPUs    string        `mapstructure:"cpus"`
	// Network false runs without a network; baseline packages must then be
	// baked into the image, since the runtime only installs missing ones.
	Network bool          `mapstructure:"network"`
	Timeout time.Duration `mapstructure:"timeout"`
	Images  []string      `mapstructure:"images"`
}

type InstallerConfig struct {
	Baseline []string             `mapstructure:"baseline"`
	Markers  []harness.MarkerRule `mapstructure:"markers"`
	IndexURL string               `mapstructure:"index_url"`
}

type OutputConfig struct {
	Marker string `mapstructure:"marker"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LLMConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxIterations int    `mapstructure:"max_iterations"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Installer InstallerConfig `mapstructure:"installer"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Log       LogConfig       `mapstructure:"log"`
}

// Load reads pyrun.yaml from path, or from . and $HOME/.pyrun when path is
// empty. A missing file is fine; defaults and PYRUN_* variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pyrun")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pyrun")
	}

	v.SetEnvPrefix("pyrun")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	policy := sandbox.DefaultPolicy()
	engine := harness.DefaultConfig()
	v.SetDefault("runtime.kind", "docker")
	v.SetDefault("runtime.image", engine.Image)
	v.SetDefault("runtime.python", engine.Interpreter)
	v.SetDefault("runtime.memory", policy.MaxMemory)
	v.SetDefault("runtime.cpus", "")
	v.SetDefault("runtime.network", policy.Network)
	v.SetDefault("runtime.timeout", time.Duration(0))
	v.SetDefault("runtime.images", policy.Images)
	v.SetDefault("installer.baseline", engine.Baseline)
	v.SetDefault("installer.index_url", "")
	v.SetDefault("output.marker", harness.DefaultMarker)
	v.SetDefault("server.port", 8080)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1/")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_iterations", 10)
	v.SetDefault("log.level", "warn")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !v.IsSet("installer.markers") {
		cfg.Installer.Markers = engine.Markers
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	return &cfg, nil
}

// expandEnv resolves values of the form ${VAR}.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Policy returns the sandbox policy for the configured runtime.
func (c *Config) Policy() sandbox.Policy {
	images := c.Runtime.Images
	if c.Runtime.Image != "" && len(images) == 0 {
		images = []string{c.Runtime.Image}
	}
	return sandbox.Policy{
		MaxMemory:  c.Runtime.Memory,
		MaxCPUs:    c.Runtime.CPUs,
		MaxTimeout: c.Runtime.Timeout,
		Network:    c.Runtime.Network,
		Images:     images,
	}
}

// Engine returns the harness configuration.
func (c *Config) Engine() harness.Config {
	return harness.Config{
		Image:       c.Runtime.Image,
		Interpreter: c.Runtime.Python,
		Baseline:    c.Installer.Baseline,
		Markers:     c.Installer.Markers,
		IndexURL:    c.Installer.IndexURL,
		Timeout:     c.Runtime.Timeout,
	}
}
