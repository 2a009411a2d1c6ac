// Package extplugin implements the External half of the plugin sum-type
// named in spec.md §9 ("Plugin = InProcess(...) | External(...)"): a
// plugin.Plugin backed by an executable invoked as `<path> <verb>` over
// the subprocess protocol of spec.md §6, with read-only probe verbs
// served through the probe cache (SPEC_FULL.md §4.14) instead of
// re-exec'd on every call.
package extplugin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/probecache"
)

// External drives one executable plugin through the verb protocol. Exit
// code 0 means "yes"/success; non-zero means "no"/error, per spec.md §6 —
// only a failure to exec the binary at all is surfaced as a Go error.
type External struct {
	plugin.Base

	path   string
	name   string
	cache  *probecache.Cache
	dryRun bool
}

// New creates an External plugin for the executable at path. cache may
// be nil, in which case probe answers are never cached.
func New(path string, cache *probecache.Cache, dryRun bool) *External {
	return &External{
		path:   path,
		name:   filepath.Base(path),
		cache:  cache,
		dryRun: dryRun,
	}
}

// Name returns the plugin's executable basename.
func (e *External) Name() string { return e.name }

// IsApplicable runs the `is-applicable` verb, consulting and populating
// the probe cache (a read-only probe, always cacheable).
func (e *External) IsApplicable(ctx context.Context) (bool, error) {
	return e.cachedBoolVerb(ctx, plugin.VerbIsApplicable, plugin.Check)
}

// CommandsForPhase maps a phase to the verb that actually performs it:
// `estimate-update` for CHECK, `download` for DOWNLOAD (only if the
// plugin declares separate-download support), `update` for EXECUTE. Under
// dry-run, EXECUTE re-runs `estimate-update` instead of `update` so no
// external plugin ever mutates state.
func (e *External) CommandsForPhase(ctx context.Context, phase plugin.Phase) ([]plugin.Command, error) {
	switch phase {
	case plugin.Check:
		return []plugin.Command{{Argv: []string{e.path, string(plugin.VerbEstimateUpdate)}}}, nil

	case plugin.Download:
		supports, err := e.cachedBoolVerb(ctx, plugin.VerbCanSeparateDL, plugin.Check)
		if err != nil {
			return nil, err
		}
		if !supports {
			return nil, nil
		}
		return []plugin.Command{{Argv: []string{e.path, string(plugin.VerbDownload)}}}, nil

	case plugin.Execute:
		verb := plugin.VerbUpdate
		if e.dryRun {
			verb = plugin.VerbEstimateUpdate
		}
		return []plugin.Command{{Argv: []string{e.path, string(verb)}}}, nil

	default:
		return nil, nil
	}
}

// DynamicMutexes runs the phase's `*-mutexes` verb, returning the
// newline-separated mutex names it prints to stdout. This is the sole
// source of an External plugin's mutex set (spec.md §3: "the dynamic set
// is obtained from the plugin after its CHECK phase completes") — the
// descriptor's StaticMutexes is left empty for External plugins.
func (e *External) DynamicMutexes(ctx context.Context, phase plugin.Phase) ([]string, error) {
	verb, ok := mutexVerbs[phase]
	if !ok {
		return nil, nil
	}
	if e.cache != nil {
		if names, ok := e.cache.GetStrings(e.name, verb, phase); ok {
			return names, nil
		}
	}
	out, _, err := e.run(ctx, verb)
	if err != nil {
		return nil, err
	}
	names := splitLines(out)
	if e.cache != nil {
		e.cache.PutStrings(e.name, verb, phase, names)
	}
	return names, nil
}

var mutexVerbs = map[plugin.Phase]plugin.Verb{
	plugin.Check:   plugin.VerbCheckMutexes,
	plugin.Download: plugin.VerbDownloadMutexes,
	plugin.Execute:  plugin.VerbExecuteMutexes,
}

// RequiresElevation runs the `does-require-sudo` verb; callers use this to
// populate plugin.Descriptor.Capabilities.RequiresElevation at
// registration time.
func (e *External) RequiresElevation(ctx context.Context) (bool, error) {
	return e.cachedBoolVerb(ctx, plugin.VerbDoesRequireSudo, plugin.Check)
}

// SupportsSeparateDownload runs the `can-separate-download` verb; callers
// use this to populate Capabilities.SupportsSeparateDownload.
func (e *External) SupportsSeparateDownload(ctx context.Context) (bool, error) {
	return e.cachedBoolVerb(ctx, plugin.VerbCanSeparateDL, plugin.Check)
}

// cachedBoolVerb runs a read-only boolean verb, serving and populating
// the probe cache keyed on (name, verb, phase).
func (e *External) cachedBoolVerb(ctx context.Context, verb plugin.Verb, phase plugin.Phase) (bool, error) {
	if e.cache != nil {
		if v, ok := e.cache.GetBool(e.name, verb, phase); ok {
			return v, nil
		}
	}
	_, exitCode, err := e.run(ctx, verb)
	if err != nil {
		return false, err
	}
	result := exitCode == 0
	if e.cache != nil {
		e.cache.PutBool(e.name, verb, phase, result)
	}
	return result, nil
}

// run execs the plugin with verb as its sole argument, returning stdout
// and the process exit code. A non-zero exit is not itself a Go error
// (spec.md §6 treats it as a boolean "no"); only a failure to start the
// process is returned as err.
func (e *External) run(ctx context.Context, verb plugin.Verb) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, e.path, string(verb))
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return stdout.Bytes(), ee.ExitCode(), nil
	}
	return stdout.Bytes(), -1, err
}

func splitLines(out []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}
