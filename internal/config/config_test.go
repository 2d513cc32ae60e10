package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || len(cfg.MCP.Servers) != 0 || cfg.EnableTools {
		t.Fatalf("expected zero-value config, got %+v", cfg)
	}
}

func TestLoadConfig_ParsesMCPAndToolAllowList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
enableTools: true
allowTools:
  - echo
  - search
mcp:
  servers:
    - name: local-tools
      command: /usr/local/bin/mcp-server
      args: ["--stdio"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.EnableTools {
		t.Fatalf("expected EnableTools true")
	}
	if len(cfg.ToolAllowList) != 2 || cfg.ToolAllowList[0] != "echo" {
		t.Fatalf("unexpected allow list: %+v", cfg.ToolAllowList)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Name != "local-tools" {
		t.Fatalf("unexpected MCP servers: %+v", cfg.MCP.Servers)
	}
}
