package config

// OpenAIConfig configures the OpenAI-compatible Provider. BaseURL can point at
// a self-hosted OpenAI-API-shaped server (mlx_lm, llama.cpp) instead of
// api.openai.com, in which case API selects which wire shape to speak.
type OpenAIConfig struct {
	APIKey      string         `yaml:"apiKey"`
	BaseURL     string         `yaml:"baseURL,omitempty"`
	Model       string         `yaml:"model"`
	API         string         `yaml:"api,omitempty"` // "completions" (default) or "responses"
	LogPayloads bool           `yaml:"logPayloads,omitempty"`
	ExtraParams map[string]any `yaml:"extraParams,omitempty"`
}

// AnthropicPromptCacheConfig controls Anthropic prompt-caching breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cacheSystem,omitempty"`
	CacheTools    bool `yaml:"cacheTools,omitempty"`
	CacheMessages bool `yaml:"cacheMessages,omitempty"`
}

// AnthropicConfig configures the Anthropic-backed Provider.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"apiKey"`
	BaseURL     string                     `yaml:"baseURL,omitempty"`
	Model       string                     `yaml:"model"`
	PromptCache AnthropicPromptCacheConfig `yaml:"promptCache,omitempty"`
	ExtraParams map[string]any             `yaml:"extraParams,omitempty"`
}

// GoogleConfig configures the Gemini-backed Provider.
type GoogleConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL,omitempty"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeoutSeconds,omitempty"`
}

// LLMClientConfig selects and configures the active LLM Provider, plus the
// CompactProvider used for context summarization when it differs.
type LLMClientConfig struct {
	Provider        string          `yaml:"provider"` // "openai" (default), "local", "anthropic", "google"
	CompactProvider string          `yaml:"compactProvider,omitempty"`
	OpenAI          OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic       AnthropicConfig `yaml:"anthropic,omitempty"`
	Google          GoogleConfig    `yaml:"google,omitempty"`
}

// LLMClientFromRuntime derives an LLMClientConfig from the environment-driven
// RuntimeConfig, defaulting the provider to whichever API key is set.
func LLMClientFromRuntime(rc RuntimeConfig) LLMClientConfig {
	provider := ""
	switch {
	case rc.Anthropic.APIKey != "":
		provider = "anthropic"
	case rc.Google.APIKey != "":
		provider = "google"
	default:
		provider = "openai"
	}
	return LLMClientConfig{
		Provider: provider,
		OpenAI: OpenAIConfig{
			APIKey:  rc.OpenAI.APIKey,
			BaseURL: rc.OpenAI.BaseURL,
			Model:   rc.OpenAI.Model,
		},
		Anthropic: AnthropicConfig{
			APIKey:  rc.Anthropic.APIKey,
			BaseURL: rc.Anthropic.BaseURL,
			Model:   rc.Anthropic.Model,
		},
		Google: GoogleConfig{
			APIKey:  rc.Google.APIKey,
			BaseURL: rc.Google.BaseURL,
			Model:   rc.Google.Model,
		},
	}
}

// MCPServerConfig describes one MCP server to connect to, either by spawning
// a local command over stdio or dialing a remote Streamable-HTTP endpoint.
type MCPServerConfig struct {
	Name             string            `yaml:"name"`
	Command          string            `yaml:"command,omitempty"`
	Args             []string          `yaml:"args,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	KeepAliveSeconds int               `yaml:"keepAliveSeconds,omitempty"`
	PathDependent    bool              `yaml:"pathDependent,omitempty"`
	URL              string            `yaml:"url,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty"`
	BearerToken      string            `yaml:"bearerToken,omitempty"`
	Origin           string            `yaml:"origin,omitempty"`
	ProtocolVersion  string            `yaml:"protocolVersion,omitempty"`
	HTTP             struct {
		TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
		ProxyURL       string `yaml:"proxyURL,omitempty"`
		TLS            struct {
			InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty"`
		} `yaml:"tls,omitempty"`
	} `yaml:"http,omitempty"`
}

// MCPConfig lists the MCP servers the tool registry should connect to at
// startup.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers,omitempty"`
}

// ObsConfig configures the OTLP tracing/metrics exporters. OTLP empty means
// observability.InitOTel is skipped entirely.
type ObsConfig struct {
	OTLP           string `yaml:"otlp,omitempty"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`
	Environment    string `yaml:"environment,omitempty"`
}
