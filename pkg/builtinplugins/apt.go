// Package builtinplugins provides a handful of concrete, in-process
// plugin.Plugin implementations (SPEC_FULL.md §4.20) so the scheduler,
// executor, and UI have real plugins to drive in tests and demo runs.
package builtinplugins

import (
	"context"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// Apt drives `apt-get` through CHECK (simulate) and EXECUTE (apply). It
// does not support a separate download phase and requires elevation.
type Apt struct {
	plugin.Base
	DryRun bool
}

// Descriptor returns Apt's static plugin.Descriptor.
func (a *Apt) Descriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		Name: a.Name(),
		StaticMutexes: map[plugin.Phase][]string{
			plugin.Check:   {"pkgmgr:apt"},
			plugin.Execute: {"pkgmgr:apt", "system:dpkg-lock"},
		},
		Capabilities: plugin.Capabilities{
			SupportsSeparateDownload: false,
			RequiresElevation:        true,
		},
	}
}

func (a *Apt) Name() string { return "apt" }

func (a *Apt) CommandsForPhase(ctx context.Context, phase plugin.Phase) ([]plugin.Command, error) {
	switch phase {
	case plugin.Check:
		return []plugin.Command{{
			Argv:            []string{"apt-get", "-s", "upgrade"},
			RequiresElevate: false,
		}}, nil
	case plugin.Execute:
		argv := []string{"apt-get", "-y", "upgrade"}
		if a.DryRun {
			argv = []string{"apt-get", "-s", "upgrade"}
		}
		return []plugin.Command{{
			Argv:            argv,
			RequiresElevate: true,
			SuccessPatterns: []string{`^\d+ upgraded, \d+ newly installed`},
		}}, nil
	default:
		return nil, nil
	}
}

func (a *Apt) CountPackages(phase plugin.Phase, output []byte) int {
	return countAptPackages(output)
}
