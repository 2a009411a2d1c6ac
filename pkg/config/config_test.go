package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DownloadConcurrency != 2 {
		t.Fatalf("DownloadConcurrency = %d, want 2", cfg.DownloadConcurrency)
	}
	if cfg.Layout != "tabs" {
		t.Fatalf("Layout = %q, want %q", cfg.Layout, "tabs")
	}
	if len(cfg.MutexCategories) != len(DefaultMutexCategories) {
		t.Fatalf("MutexCategories = %v, want %v", cfg.MutexCategories, DefaultMutexCategories)
	}
	if cfg.KeyBindings.Quit != "ctrl+c" {
		t.Fatalf("KeyBindings.Quit = %q, want ctrl+c", cfg.KeyBindings.Quit)
	}
	if !strings.HasSuffix(cfg.RunStateDir, "runs") {
		t.Fatalf("RunStateDir = %q, want suffix runs", cfg.RunStateDir)
	}
}

func TestLoadFromReaderOverridesOnlySpecifiedFields(t *testing.T) {
	const toml = `
concurrency = 4
dry_run = true

[key_bindings]
quit = "q"
`
	cfg, err := LoadFromReader(strings.NewReader(toml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if !cfg.DryRun {
		t.Fatal("DryRun = false, want true")
	}
	if cfg.KeyBindings.Quit != "q" {
		t.Fatalf("KeyBindings.Quit = %q, want q", cfg.KeyBindings.Quit)
	}
	// Unspecified fields keep their defaults.
	if cfg.DownloadConcurrency != 2 {
		t.Fatalf("DownloadConcurrency = %d, want default 2", cfg.DownloadConcurrency)
	}
	if cfg.KeyBindings.TabNext != "tab" {
		t.Fatalf("KeyBindings.TabNext = %q, want default tab", cfg.KeyBindings.TabNext)
	}
}

func TestLoadFromFileMissingReturnsDefault(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/to/config.toml")
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Layout != "tabs" {
		t.Fatalf("Layout = %q, want default tabs", cfg.Layout)
	}
}

func TestLoadFromReaderRejectsMalformedTOML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("concurrency = ["))
	if err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}
