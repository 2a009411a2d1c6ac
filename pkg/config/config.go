package config

// Config is the orchestrator's full runtime configuration, loaded from a
// TOML file and then overridden by CLI flags (flag > file > default).
type Config struct {
	Concurrency         int      `toml:"concurrency"`
	DownloadConcurrency int      `toml:"download_concurrency"`
	MemoryCapMB         int      `toml:"memory_cap_mb"`
	PauseBetweenPhases  bool     `toml:"pause_between_phases"`
	ContinueOnError     bool     `toml:"continue_on_error"`
	DryRun              bool     `toml:"dry_run"`
	Plugins             []string `toml:"plugins"`
	MutexCategories     []string `toml:"mutex_categories"`
	KeyBindings         KeyBindingConfig `toml:"key_bindings"`
	Layout              string   `toml:"layout"`

	RunStateDir   string `toml:"run_state_dir"`
	CacheDir      string `toml:"cache_dir"`
	LogDir        string `toml:"log_dir"`
	ControlSocket string `toml:"control_socket"`

	ProbeCacheTTL Duration `toml:"probe_cache_ttl"`
	NoCache       bool     `toml:"-"` // CLI-only, not persisted
}

// KeyBindingConfig names the chord used for each router-reserved action
// (spec §4.11). Values are tcell/bubbletea-style key strings (e.g.
// "ctrl+q", "tab", "f1").
type KeyBindingConfig struct {
	TabNext   string `toml:"tab_next"`
	TabPrev   string `toml:"tab_prev"`
	Quit      string `toml:"quit"`
	Help      string `toml:"help"`
	Pause     string `toml:"pause"`
	Retry     string `toml:"retry"`
	SaveLogs  string `toml:"save_logs"`
	ScrollUp  string `toml:"scroll_up"`
	ScrollDn  string `toml:"scroll_down"`
}

// DefaultKeyBindings returns the orchestrator's default chord set.
func DefaultKeyBindings() KeyBindingConfig {
	return KeyBindingConfig{
		TabNext:  "tab",
		TabPrev:  "shift+tab",
		Quit:     "ctrl+c",
		Help:     "f1",
		Pause:    "p",
		Retry:    "r",
		SaveLogs: "ctrl+s",
		ScrollUp: "pgup",
		ScrollDn: "pgdown",
	}
}

// DefaultMutexCategories is the reserved mutex-category set from spec §3.
var DefaultMutexCategories = []string{"pkgmgr", "runtime", "app", "system"}
