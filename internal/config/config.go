package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the on-disk, operator-edited settings that RuntimeConfig (the
// environment-driven knobs) doesn't cover: which MCP servers to connect to at
// startup, which tools the agent is allowed to call, and process-level
// logging/observability/workdir settings.
type Config struct {
	MCP           MCPConfig `yaml:"mcp,omitempty"`
	EnableTools   bool      `yaml:"enableTools,omitempty"`
	ToolAllowList []string  `yaml:"allowTools,omitempty"`

	LogPath  string    `yaml:"logPath,omitempty"`
	LogLevel string    `yaml:"logLevel,omitempty"`
	Obs      ObsConfig `yaml:"observability,omitempty"`

	Workdir                 string `yaml:"workdir,omitempty"`
	MaxSteps                int    `yaml:"maxSteps,omitempty"`
	AgentRunTimeoutSeconds  int    `yaml:"agentRunTimeoutSeconds,omitempty"`
	SystemPrompt            string `yaml:"systemPrompt,omitempty"`
}

// LoadConfig reads a YAML config file. A missing file is not an error; the
// caller gets a zero-value Config and relies on RuntimeConfig/env defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Error().Err(err).Str("path", path).Msg("config_unmarshal_failed")
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
