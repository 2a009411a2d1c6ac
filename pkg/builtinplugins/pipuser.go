package builtinplugins

import (
	"context"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// PipUser checks for outdated user-site packages with `pip list --user
// --outdated` and upgrades them with `pip install --user -U`. No elevation.
type PipUser struct {
	plugin.Base
}

func (p *PipUser) Descriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		Name: p.Name(),
		StaticMutexes: map[plugin.Phase][]string{
			plugin.Check:   {"pkgmgr:pip"},
			plugin.Execute: {"pkgmgr:pip"},
		},
	}
}

func (p *PipUser) Name() string { return "pip-user" }

func (p *PipUser) CommandsForPhase(ctx context.Context, phase plugin.Phase) ([]plugin.Command, error) {
	switch phase {
	case plugin.Check:
		return []plugin.Command{{Argv: []string{"pip", "list", "--user", "--outdated"}}}, nil
	case plugin.Execute:
		return []plugin.Command{{Argv: []string{"pip", "install", "--user", "-U"}}}, nil
	default:
		return nil, nil
	}
}

func (p *PipUser) CountPackages(phase plugin.Phase, output []byte) int {
	return countPipPackages(output)
}
