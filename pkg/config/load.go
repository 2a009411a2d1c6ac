package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/sysupdate/config.toml
//  2. ~/.config/sysupdate/config.toml
//
// If no file exists, returns DefaultConfig().
func Load() (*Config, error) {
	paths := configSearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	return DefaultConfig(), nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader, starting from
// DefaultConfig() and decoding TOML on top of it so that any field the
// file omits keeps its default value.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration with sensible defaults.
// Concurrency of 0 means "clamp to host CPU count" (see pkg/resctl).
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	cacheDir := filepath.Join(xdgCacheHome(home), "sysupdate")
	stateDir := filepath.Join(xdgStateHome(home), "sysupdate")

	return &Config{
		Concurrency:         0,
		DownloadConcurrency: 2,
		MemoryCapMB:         0,
		PauseBetweenPhases:  false,
		ContinueOnError:     false,
		DryRun:              false,
		Plugins:             nil,
		MutexCategories:     append([]string(nil), DefaultMutexCategories...),
		KeyBindings:         DefaultKeyBindings(),
		Layout:              "tabs",

		RunStateDir:   filepath.Join(stateDir, "runs"),
		CacheDir:      cacheDir,
		LogDir:        filepath.Join(stateDir, "logs"),
		ControlSocket: "",

		ProbeCacheTTL: Duration{0},
		NoCache:       false,
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string

	xdg := xdgConfigHome(home)
	paths = append(paths, filepath.Join(xdg, "sysupdate", "config.toml"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		paths = append(paths, filepath.Join(defaultXDG, "sysupdate", "config.toml"))
	}

	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

// xdgCacheHome returns XDG_CACHE_HOME or ~/.cache as fallback.
func xdgCacheHome(home string) string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".cache")
}

// xdgStateHome returns XDG_STATE_HOME or ~/.local/state as fallback, used
// for the run-state store and log directory.
func xdgStateHome(home string) string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".local", "state")
}
