package plugin

import "context"

// Base provides default implementations of every Plugin
// method except Name and CommandsForPhase, per spec §9: embed it so a
// minimal plugin only has to populate name, command, and get-commands.
type Base struct{}

// IsApplicable defaults to true: most plugins are applicable unless they
// override this to probe the host.
func (Base) IsApplicable(ctx context.Context) (bool, error) { return true, nil }

// DynamicMutexes defaults to none.
func (Base) DynamicMutexes(ctx context.Context, phase Phase) ([]string, error) { return nil, nil }

// CountPackages defaults to zero; plugins that can count touched packages
// override this.
func (Base) CountPackages(phase Phase, output []byte) int { return 0 }
