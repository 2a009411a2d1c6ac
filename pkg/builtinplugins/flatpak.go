package builtinplugins

import (
	"context"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// Flatpak drives `flatpak update`. It supports a separate download phase
// (`--download-only`) and needs no elevation.
type Flatpak struct {
	plugin.Base
}

func (f *Flatpak) Descriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		Name: f.Name(),
		StaticMutexes: map[plugin.Phase][]string{
			plugin.Download: {"pkgmgr:flatpak"},
			plugin.Execute:  {"pkgmgr:flatpak"},
		},
		Capabilities: plugin.Capabilities{
			SupportsSeparateDownload: true,
		},
	}
}

func (f *Flatpak) Name() string { return "flatpak" }

func (f *Flatpak) CommandsForPhase(ctx context.Context, phase plugin.Phase) ([]plugin.Command, error) {
	switch phase {
	case plugin.Check:
		return []plugin.Command{{Argv: []string{"flatpak", "update", "--assumeyes", "--no-deploy"}}}, nil
	case plugin.Download:
		return []plugin.Command{{Argv: []string{"flatpak", "update", "--assumeyes", "--download-only"}}}, nil
	case plugin.Execute:
		return []plugin.Command{{Argv: []string{"flatpak", "update", "--assumeyes"}}}, nil
	default:
		return nil, nil
	}
}

func (f *Flatpak) CountPackages(phase plugin.Phase, output []byte) int {
	return countFlatpakPackages(output)
}
