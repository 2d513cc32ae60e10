package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"agentrt/internal/agent"
	"agentrt/internal/agent/prompts"
	"agentrt/internal/config"
	"agentrt/internal/eventstream"
	"agentrt/internal/filestore"
	"agentrt/internal/llm/providers"
	"agentrt/internal/ltm"
	"agentrt/internal/memory"
	"agentrt/internal/observability"
	"agentrt/internal/reportstore"
	"agentrt/internal/todostore"
	"agentrt/internal/tools"
	"agentrt/internal/tools/mcpclient"
)

const mcpInitTimeout = 20 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	q := flag.String("q", "", "User request")
	sessionID := flag.String("session", "", "Session id (generated if empty)")
	flag.Parse()

	if *q == "" {
		fmt.Fprintln(os.Stderr, "usage: agent -q \"...\"")
		os.Exit(2)
	}

	fileCfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	runtimeCfg := config.LoadRuntimeConfig()

	if err := run(context.Background(), fileCfg, runtimeCfg, *q, *sessionID); err != nil {
		log.Fatal().Err(err).Msg("agent")
	}
}

func run(baseCtx context.Context, cfg *config.Config, runtimeCfg config.RuntimeConfig, query, sessionID string) error {
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Msg("agent starting")

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	httpClient := observability.NewHTTPClient(nil)

	llmCfg := config.LLMClientFromRuntime(runtimeCfg)
	provider, err := providers.Build(llmCfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}
	compactProvider, err := providers.BuildCompact(llmCfg, httpClient)
	if err != nil {
		return fmt.Errorf("build compact llm provider: %w", err)
	}

	registry := tools.NewRegistry()

	mcpMgr := mcpclient.NewManager()
	defer mcpMgr.Close()
	ctxInit, cancelInit := context.WithTimeout(baseCtx, mcpInitTimeout)
	if err := mcpMgr.RegisterFromConfig(ctxInit, registry, cfg.MCP); err != nil {
		log.Warn().Err(err).Msg("mcp init")
	}
	cancelInit()

	if !cfg.EnableTools {
		registry = tools.NewRegistry()
	} else if len(cfg.ToolAllowList) > 0 {
		registry = tools.NewFilteredRegistry(registry, cfg.ToolAllowList)
	}

	{
		names := make([]string, 0, len(registry.Schemas()))
		for _, s := range registry.Schemas() {
			names = append(names, s.Name)
		}
		log.Info().Bool("enableTools", cfg.EnableTools).Strs("allowList", cfg.ToolAllowList).Strs("tools", names).Msg("tool_registry_contents")
	}

	dataDir := runtimeCfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	files, err := filestore.New(dataDir + "/uploads")
	if err != nil {
		return fmt.Errorf("init filestore: %w", err)
	}

	deps := agent.Deps{
		Provider:        provider,
		CompactProvider: compactProvider,
		ToolRegistry:    registry,
		ToolManager:     tools.NewManager(registry, tools.WithCache(files)),
		Sessions:        memory.NewFileStore(dataDir + "/conversations"),
		Todos:           todostore.New(dataDir + "/todos"),
		Reports:         reportstore.New(dataDir + "/reports"),
		LTM:             ltm.New(runtimeCfg.LTMPath),
		Files:           files,
		Runtime:         runtimeCfg,
	}

	workdir := cfg.Workdir
	if workdir == "" {
		workdir, _ = os.Getwd()
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.DefaultSystemPrompt(workdir)
	}

	loop := agent.NewMainLoop(deps, systemPrompt)

	runCtx := baseCtx
	var cancel context.CancelFunc
	if cfg.AgentRunTimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(baseCtx, time.Duration(cfg.AgentRunTimeoutSeconds)*time.Second)
		defer cancel()
	}

	stream := loop.Run(runCtx, agent.RunOptions{UserInput: query, SessionID: sessionID, SaveLTM: runtimeCfg.LTMEnabled})

	var final string
	for ev := range stream.Events() {
		switch ev.Kind {
		case eventstream.KindContent:
			final += ev.Content
		case eventstream.KindToolCall:
			log.Info().Str("tool", ev.ToolCall.Name).Msg("tool_call")
		case eventstream.KindToolResult:
			log.Info().Str("tool", ev.ToolResult.ToolName).Str("error", ev.ToolResult.Error).Msg("tool_result")
		case eventstream.KindDone:
			log.Info().Str("reason", ev.Done.Reason).Msg("run_done")
		}
	}

	fmt.Println(final)
	return nil
}
