package providers

import (
	"fmt"
	"net/http"

	"agentrt/internal/config"
	"agentrt/internal/llm"
	"agentrt/internal/llm/anthropic"
	"agentrt/internal/llm/google"
	openaillm "agentrt/internal/llm/openai"
)

// Build constructs an llm.Provider for cfg.Provider:
//   - openai: the OpenAI client (also used for self-hosted OpenAI-API servers)
//   - local: the OpenAI client pinned to the completions wire shape
//   - anthropic, google: the respective native clients
func Build(cfg config.LLMClientConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "local":
		oc := cfg.OpenAI
		oc.API = "completions"
		return openaillm.New(oc, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "google":
		c, err := google.New(cfg.Google, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// BuildCompact builds the Provider used for context compaction, falling back
// to the primary provider when CompactProvider is unset.
func BuildCompact(cfg config.LLMClientConfig, httpClient *http.Client) (llm.Provider, error) {
	if cfg.CompactProvider == "" {
		return Build(cfg, httpClient)
	}
	compact := cfg
	compact.Provider = cfg.CompactProvider
	return Build(compact, httpClient)
}
