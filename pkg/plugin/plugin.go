// Package plugin defines the plugin descriptor, phase/command data model,
// and registry of spec §3 and §4.7: the unit the scheduler and executor
// drive through CHECK → DOWNLOAD → EXECUTE.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Phase is one of the three ordered stages a plugin passes through.
type Phase int

const (
	Check Phase = iota
	Download
	Execute
)

// Phases lists the phases in traversal order.
var Phases = [...]Phase{Check, Download, Execute}

// String returns the phase's wire name (lowercase), matching the
// PROGRESS: protocol's "phase" field (spec §6).
func (p Phase) String() string {
	switch p {
	case Check:
		return "check"
	case Download:
		return "download"
	case Execute:
		return "execute"
	default:
		return "unknown"
	}
}

// Label returns the display-only rename shown in the UI (spec §4.9):
// "Update" for CHECK, "Download" for DOWNLOAD, "Upgrade" for EXECUTE.
func (p Phase) Label() string {
	switch p {
	case Check:
		return "Update"
	case Download:
		return "Download"
	case Execute:
		return "Upgrade"
	default:
		return "Unknown"
	}
}

// Verb is one of the closed set of commands an external plugin executable
// understands (spec §6).
type Verb string

const (
	VerbIsApplicable       Verb = "is-applicable"
	VerbEstimateUpdate     Verb = "estimate-update"
	VerbCanSeparateDL      Verb = "can-separate-download"
	VerbDownload           Verb = "download"
	VerbUpdate             Verb = "update"
	VerbDoesRequireSudo    Verb = "does-require-sudo"
	VerbSudoProgramsPaths  Verb = "sudo-programs-paths"
	VerbCheckMutexes       Verb = "check-mutexes"
	VerbDownloadMutexes    Verb = "download-mutexes"
	VerbExecuteMutexes     Verb = "execute-mutexes"
	VerbCheckDependency    Verb = "check-dependency"
	VerbDownloadDependency Verb = "download-dependency"
	VerbExecuteDependency  Verb = "execute-dependency"
)

// Command is one step within a phase: an argument vector plus optional
// overrides (spec §3 "Update command"). Immutable once constructed.
type Command struct {
	Argv            []string
	RequiresElevate bool
	Timeout         int // seconds; 0 means the phase default
	ErrorPatterns   []string
	SuccessPatterns []string
	IgnoreExitCodes []int
	Step, OfSteps   int
}

// Capabilities declares what optional behaviors a plugin supports; a
// plugin that implements none of them still works as long as it provides
// a name and CommandsForPhase (spec §9 "heterogeneous plugin set").
type Capabilities struct {
	SupportsSeparateDownload bool
	RequiresElevation        bool
	SupportsInteractive      bool
}

// Descriptor is the immutable identity and declared behavior of a plugin,
// created at registration time and held for the lifetime of the run (spec
// §3 ownership rules).
type Descriptor struct {
	Name            string
	StaticMutexes   map[Phase][]string
	RunsAfter       []string
	Capabilities    Capabilities
	DeclarationRank int // stable tie-break order, set by Registry.Register
}

// EffectiveMutexes returns the descriptor's static mutex set for phase
// union'd with dyn, the dynamic set obtained from the plugin after CHECK
// (spec §3).
func (d *Descriptor) EffectiveMutexes(phase Phase, dyn []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range d.StaticMutexes[phase] {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	for _, m := range dyn {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// Plugin is the sum-type interface of spec §9: InProcess and External
// implementations both satisfy it. Embedding Base supplies a default for
// every method other than Name and CommandsForPhase (Base.IsApplicable
// reports true), so a minimal plugin needs only those two.
type Plugin interface {
	// Name returns the plugin's unique identifier, matching its
	// Descriptor.Name.
	Name() string

	// IsApplicable reports whether this plugin has anything to do on
	// this host. A plugin that answers false is excluded from the
	// scheduler's DAG entirely (spec §4.8 step 1).
	IsApplicable(ctx context.Context) (bool, error)

	// CommandsForPhase returns the command vector for phase. An empty
	// slice means the phase is a no-op for this plugin (spec §4.7 step
	// 1).
	CommandsForPhase(ctx context.Context, phase Phase) ([]Command, error)

	// DynamicMutexes returns additional mutexes discovered after CHECK,
	// for the given upcoming phase (spec §9 "dynamic mutex discovery").
	// Plugins with no dynamic mutexes return nil.
	DynamicMutexes(ctx context.Context, phase Phase) ([]string, error)

	// CountPackages applies the phase's package-counting rule against
	// collected output, for the Completion event's packages-updated
	// count (spec §3, §4.7 step 8).
	CountPackages(phase Phase, output []byte) int
}

// Registry holds every registered plugin descriptor and implementation
// for the lifetime of the process (spec §3 ownership rules), analogous to
// a collector registry but keyed on the update-plugin domain.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	descs   map[string]*Descriptor
	order   []string
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		descs:   make(map[string]*Descriptor),
	}
}

// Register adds p under desc. Returns an error if the name is already
// registered. DeclarationRank is assigned as the order of registration,
// which the scheduler uses as its stable tie-break (spec §4.8).
func (r *Registry) Register(desc *Descriptor, p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[desc.Name]; exists {
		return fmt.Errorf("plugin %q already registered", desc.Name)
	}
	desc.DeclarationRank = len(r.order)
	r.plugins[desc.Name] = p
	r.descs[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return nil
}

// Get returns the plugin and descriptor registered under name.
func (r *Registry) Get(name string) (Plugin, *Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, nil, false
	}
	return p, r.descs[name], true
}

// List returns plugin names in declaration order (spec §4.8 tie-break).
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedDescriptors returns every descriptor sorted by DeclarationRank.
func (r *Registry) SortedDescriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeclarationRank < out[j].DeclarationRank })
	return out
}
