package builtinplugins

import (
	"context"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// Noop has no commands for any phase. It exercises the "no command for
// this phase" path of spec.md §4.7 step 1 in tests.
type Noop struct {
	plugin.Base
	PluginName string
}

func (n *Noop) Descriptor() *plugin.Descriptor {
	return &plugin.Descriptor{Name: n.Name()}
}

func (n *Noop) Name() string {
	if n.PluginName != "" {
		return n.PluginName
	}
	return "noop"
}

func (n *Noop) CommandsForPhase(ctx context.Context, phase plugin.Phase) ([]plugin.Command, error) {
	return nil, nil
}
