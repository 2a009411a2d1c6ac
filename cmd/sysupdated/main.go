// sysupdated drives a host's registered update plugins through CHECK,
// DOWNLOAD, and EXECUTE, either headless (for scripted/CI use) or through
// an interactive tabbed terminal UI.
//
// Usage:
//
//	sysupdated [flags]
//
// Flags:
//
//	-config string        Path to configuration file
//	-tui                   Launch the interactive terminal UI
//	-pause-phases, -P      Enable pause gates at phase boundaries
//	-concurrency, -j N     Clamp the task semaphore to N in [1, 32]
//	-dry-run               Run every phase in simulate mode
//	-continue-on-error     Keep running after a plugin failure
//	-plugins a,b,c         Restrict the run to this plugin subset
//	-control-socket path   Unix-domain control socket (STATUS/RESUME/QUIT)
//	-no-cache              Bypass the probe-answer cache
//	-log-json              Emit structured JSON logs instead of text
//	-verbose               Enable debug-level logging
//	-version               Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/sysupdate/pkg/builtinplugins"
	"gitlab.com/tinyland/lab/sysupdate/pkg/config"
	"gitlab.com/tinyland/lab/sysupdate/pkg/control"
	"gitlab.com/tinyland/lab/sysupdate/pkg/extplugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/platform"
	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/probecache"
	"gitlab.com/tinyland/lab/sysupdate/pkg/runlock"
	"gitlab.com/tinyland/lab/sysupdate/pkg/runstate"
	"gitlab.com/tinyland/lab/sysupdate/pkg/ui"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

// run contains the whole program and returns the process exit code (spec
// §6: 0 all success, 1 one or more plugin failures, 2 startup/config
// error), keeping main itself trivial for os.Exit's sake.
func run() int {
	var (
		configPath      = flag.String("config", "", "Path to configuration file")
		runTUI          = flag.Bool("tui", false, "Launch the interactive terminal UI")
		pausePhases     = flag.Bool("pause-phases", false, "Enable pause gates at phase boundaries")
		pausePhasesP    = flag.Bool("P", false, "Shorthand for -pause-phases")
		concurrency     = flag.Int("concurrency", 0, "Clamp the task semaphore to N in [1, 32] (0 = use config/default)")
		concurrencyJ    = flag.Int("j", 0, "Shorthand for -concurrency")
		dryRun          = flag.Bool("dry-run", false, "Run every phase in simulate mode")
		continueOnError = flag.Bool("continue-on-error", false, "Keep running after a plugin failure")
		pluginsFlag     = flag.String("plugins", "", "Restrict the run to this comma-separated plugin subset")
		controlSocket   = flag.String("control-socket", "", "Unix-domain control socket path (disabled if empty)")
		runStateDir     = flag.String("run-state-dir", "", "Directory for the persistent run-state document")
		cacheDir        = flag.String("cache-dir", "", "Directory for the probe-answer cache")
		noCache         = flag.Bool("no-cache", false, "Bypass the probe-answer cache")
		logJSON         = flag.Bool("log-json", false, "Emit structured JSON logs instead of text")
		verbose         = flag.Bool("verbose", false, "Enable debug-level logging")
		showVersion     = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sysupdated %s (%s) built %s\n", version, commit, date)
		return 0
	}

	if !platform.SupportsPTY() {
		fmt.Fprintf(os.Stderr, "sysupdated requires a POSIX PTY, unsupported on %s\n", platform.Current())
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 2
	}
	applyFlagOverrides(cfg, overrides{
		pausePhases:     *pausePhases || *pausePhasesP,
		concurrency:     firstNonzero(*concurrencyJ, *concurrency),
		dryRun:          *dryRun,
		continueOnError: *continueOnError,
		plugins:         *pluginsFlag,
		controlSocket:   *controlSocket,
		runStateDir:     *runStateDir,
		cacheDir:        *cacheDir,
		noCache:         *noCache,
	})
	if err := validateConcurrency(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	logger, closeLog, err := setupLogging(cfg, *logJSON, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 2
	}
	defer closeLog()

	lock, err := runlock.Acquire(filepath.Join(cfg.RunStateDir, "sysupdated.pid"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "another run is already in progress: %v\n", err)
		return 2
	}
	defer lock.Release()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build plugin registry: %v\n", err)
		return 2
	}

	names := cfg.Plugins
	if len(names) == 0 {
		names = registry.List()
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	state := runstate.New(runID, time.Now())
	store := runstate.NewStore(runstate.DefaultPath(cfg.RunStateDir, runID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	orch := newOrchestrator(cfg, registry, state, store, logger)

	handler := &controlHandler{orch: orch, cancel: cancel}
	var ctl *control.Server
	if cfg.ControlSocket != "" {
		ctl = control.NewServer(cfg.ControlSocket, handler)
		if err := ctl.Start(); err != nil {
			logger.Warn("control socket unavailable", "error", err)
			ctl = nil
		} else {
			defer ctl.Stop()
		}
	}

	var ok bool
	if *runTUI {
		ok = runInteractive(ctx, orch, cfg, names, logger)
	} else {
		ok = orch.Run(ctx, names)
	}

	if !ok {
		return 1
	}
	return 0
}

// runInteractive pre-creates a screen per plugin, launches the orchestrator
// run in the background, bridges its event queue into the Bubbletea
// program, and blocks until the TUI exits.
func runInteractive(ctx context.Context, orch *orchestrator, cfg *config.Config, names []string, logger *slog.Logger) bool {
	for _, name := range names {
		orch.Screen(name)
	}

	model := ui.New(names, cfg.KeyBindings, orch, orch.Screens())
	model.SetLogSaver(orch)
	program := tea.NewProgram(model, tea.WithAltScreen())

	bridgeCtx, cancelBridge := context.WithCancel(ctx)
	defer cancelBridge()
	go func() {
		for {
			select {
			case <-bridgeCtx.Done():
				return
			default:
			}
			for _, e := range orch.queue.DrainBatched() {
				program.Send(ui.EventMsg{Event: e})
			}
		}
	}()

	var ok bool
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ok = orch.Run(ctx, names)
		program.Send(tea.Quit())
	}()

	if _, err := program.Run(); err != nil {
		logger.Error("TUI error", "error", err)
	}
	<-runDone
	return ok
}

// loadConfig resolves configPath (explicit path, or config.Load's default
// search) into a Config.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

type overrides struct {
	pausePhases     bool
	concurrency     int
	dryRun          bool
	continueOnError bool
	plugins         string
	controlSocket   string
	runStateDir     string
	cacheDir        string
	noCache         bool
}

// applyFlagOverrides layers CLI flags on top of the loaded config,
// flag > file > default (spec §6's CLI surface).
func applyFlagOverrides(cfg *config.Config, o overrides) {
	if o.pausePhases {
		cfg.PauseBetweenPhases = true
	}
	if o.concurrency > 0 {
		cfg.Concurrency = o.concurrency
	}
	if o.dryRun {
		cfg.DryRun = true
	}
	if o.continueOnError {
		cfg.ContinueOnError = true
	}
	if o.plugins != "" {
		cfg.Plugins = strings.Split(o.plugins, ",")
	}
	if o.controlSocket != "" {
		cfg.ControlSocket = o.controlSocket
	}
	if o.runStateDir != "" {
		cfg.RunStateDir = o.runStateDir
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
	}
	if o.noCache {
		cfg.NoCache = true
	}
}

// validateConcurrency enforces spec §6's N ∈ [1, 32] bound on a
// user-supplied -concurrency/-j value; 0 ("use default") is always legal.
func validateConcurrency(cfg *config.Config) error {
	if cfg.Concurrency != 0 && (cfg.Concurrency < 1 || cfg.Concurrency > 32) {
		return fmt.Errorf("concurrency %d out of range [1, 32]", cfg.Concurrency)
	}
	return nil
}

func firstNonzero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// setupLogging builds the process logger, writing to both stderr and a
// log file under cfg.LogDir, mirroring the teacher's dual-sink slog setup.
func setupLogging(cfg *config.Config, jsonFormat, verbose bool) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(cfg.LogDir, "sysupdated.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = io.MultiWriter(os.Stderr, logFile)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), func() { logFile.Close() }, nil
}

// buildRegistry registers the built-in in-process plugins and, for every
// name in cfg.Plugins that doesn't match one of them, an External plugin
// backed by an executable of the same name found on PATH (spec.md §9's
// "Plugin = InProcess(...) | External(...)" sum-type).
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*plugin.Registry, error) {
	registry := plugin.NewRegistry()

	var cache *probecache.Cache
	if !cfg.NoCache {
		ttl := cfg.ProbeCacheTTL.Duration
		if ttl <= 0 {
			ttl = probecache.DefaultTTL
		}
		c, err := probecache.New(cfg.CacheDir, ttl, cfg.DryRun)
		if err != nil {
			logger.Warn("probe cache unavailable, proceeding uncached", "error", err)
		} else {
			cache = c
		}
	}

	builtins := []interface {
		plugin.Plugin
		Descriptor() *plugin.Descriptor
	}{
		&builtinplugins.Apt{DryRun: cfg.DryRun},
		&builtinplugins.Flatpak{},
		&builtinplugins.PipUser{},
	}
	for _, p := range builtins {
		if err := registry.Register(p.Descriptor(), p); err != nil {
			return nil, err
		}
	}

	for _, name := range cfg.Plugins {
		if _, _, ok := registry.Get(name); ok {
			continue
		}
		path, err := exec.LookPath(name)
		if err != nil {
			logger.Warn("plugin not found as a built-in or on PATH, skipping", "plugin", name, "error", err)
			continue
		}
		ext := extplugin.New(path, cache, cfg.DryRun)
		desc := &plugin.Descriptor{Name: ext.Name()}
		if elevate, err := ext.RequiresElevation(context.Background()); err == nil {
			desc.Capabilities.RequiresElevation = elevate
		}
		if sep, err := ext.SupportsSeparateDownload(context.Background()); err == nil {
			desc.Capabilities.SupportsSeparateDownload = sep
		}
		if err := registry.Register(desc, ext); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// controlHandler bridges the control socket's STATUS/RESUME/QUIT commands
// to the orchestrator's phase controller and cancellation context.
type controlHandler struct {
	orch   *orchestrator
	cancel context.CancelFunc
}

func (h *controlHandler) Status() any {
	return h.orch.state
}

func (h *controlHandler) Resume() {
	h.orch.phase.Resume()
}

func (h *controlHandler) Quit() {
	h.cancel()
}
