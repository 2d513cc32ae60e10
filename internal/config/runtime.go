package config

import (
	"os"
	"strconv"
	"strings"
)

// RuntimeConfig holds the environment-variable knobs that govern the agent
// loop, memory compaction, and tool dispatch. Every field has a documented
// default; LoadRuntimeConfig never fails on a missing or malformed
// value, it falls back and the caller can log what defaulted.
type RuntimeConfig struct {
	AutoCompactRatio              float64 `yaml:"auto_compact_ratio"`
	ToolExecutionTimeoutSeconds   int     `yaml:"tool_execution_timeout_seconds"`
	ToolResultMaxSizeBytes        int     `yaml:"tool_result_max_size_bytes"`
	MaxToolConcurrency            int     `yaml:"max_tool_concurrency"`
	SubagentMaxHeavyCallsPerIter  int     `yaml:"subagent_max_heavy_calls_per_iter"`
	SubagentIterationDelayMillis int     `yaml:"subagent_iteration_delay_millis"`
	LLMMinIntervalMillis          int     `yaml:"llm_min_interval_millis"`
	APIRequestTimeoutSeconds      int     `yaml:"api_request_timeout_seconds"`
	APIMaxRetries                 int     `yaml:"api_max_retries"`
	LTMEnabled                    bool    `yaml:"ltm_enabled"`
	LTMPath                       string  `yaml:"ltm_path"`

	OpenAI    OpenAIRuntimeConfig    `yaml:"openai,omitempty"`
	Anthropic AnthropicRuntimeConfig `yaml:"anthropic,omitempty"`
	Google    GoogleRuntimeConfig    `yaml:"google,omitempty"`

	DataDir string `yaml:"data_dir"`
}

// OpenAIRuntimeConfig configures the thinned OpenAI-backed Provider.
type OpenAIRuntimeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// AnthropicRuntimeConfig configures the thinned Anthropic-backed Provider.
type AnthropicRuntimeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GoogleRuntimeConfig configures the thinned Gemini-backed Provider.
type GoogleRuntimeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// DefaultRuntimeConfig returns the documented defaults for every knob, used
// both as the starting point for LoadRuntimeConfig and by tests that want a
// baseline to mutate.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		AutoCompactRatio:              0.92,
		ToolExecutionTimeoutSeconds:   120,
		ToolResultMaxSizeBytes:        10240,
		MaxToolConcurrency:            1,
		SubagentMaxHeavyCallsPerIter:  1,
		SubagentIterationDelayMillis: 0,
		LLMMinIntervalMillis:          0,
		APIRequestTimeoutSeconds:      600,
		APIMaxRetries:                 3,
		LTMEnabled:                    false,
		LTMPath:                       "data/ltm.md",
		DataDir:                       "data",
	}
}

// LoadRuntimeConfig reads the runtime knobs from the environment, starting
// from DefaultRuntimeConfig and overriding whatever is present and valid.
// Values that fail to parse or fall outside their valid range are ignored
// and the default is kept, mirroring the tolerant behavior of the original
// implementation this runtime is based on.
func LoadRuntimeConfig() RuntimeConfig {
	cfg := DefaultRuntimeConfig()

	if v, ok := envFloat("AUTO_COMPACT_RATIO"); ok && v > 0 && v < 1 {
		cfg.AutoCompactRatio = v
	}
	if v, ok := envInt("TOOL_EXECUTION_TIMEOUT"); ok {
		cfg.ToolExecutionTimeoutSeconds = v
	}
	if v, ok := envInt("TOOL_RESULT_MAX_SIZE"); ok {
		cfg.ToolResultMaxSizeBytes = v
	}
	if v, ok := envInt("MAX_TOOL_CONCURRENCY"); ok && v > 0 {
		cfg.MaxToolConcurrency = v
	}
	if v, ok := envInt("SUBAGENT_MAX_HEAVY_CALLS_PER_ITER"); ok && v >= 0 {
		cfg.SubagentMaxHeavyCallsPerIter = v
	}
	if v, ok := envInt("SUBAGENT_ITERATION_DELAY"); ok && v >= 0 {
		cfg.SubagentIterationDelayMillis = v
	}
	if v, ok := envInt("LLM_MIN_INTERVAL"); ok && v >= 0 {
		cfg.LLMMinIntervalMillis = v
	}
	if v, ok := envInt("API_REQUEST_TIMEOUT"); ok && v > 0 {
		cfg.APIRequestTimeoutSeconds = v
	}
	if v, ok := envInt("API_MAX_RETRIES"); ok && v >= 0 {
		cfg.APIMaxRetries = v
	}
	if v := strings.TrimSpace(os.Getenv("LTM_ENABLED")); v != "" {
		cfg.LTMEnabled = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	if v := strings.TrimSpace(os.Getenv("LTM_PATH")); v != "" {
		cfg.LTMPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}

	cfg.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if m := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); m != "" {
		cfg.OpenAI.Model = m
	} else {
		cfg.OpenAI.Model = "gpt-5"
	}

	cfg.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if m := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); m != "" {
		cfg.Anthropic.Model = m
	} else {
		cfg.Anthropic.Model = "claude-sonnet-4-5"
	}

	cfg.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	if m := strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL")); m != "" {
		cfg.Google.Model = m
	} else {
		cfg.Google.Model = "gemini-2.5-pro"
	}

	return cfg
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
