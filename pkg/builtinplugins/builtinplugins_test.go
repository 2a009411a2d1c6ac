package builtinplugins

import (
	"context"
	"testing"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

func TestAptCommandsVaryByPhase(t *testing.T) {
	a := &Apt{}
	ctx := context.Background()

	check, err := a.CommandsForPhase(ctx, plugin.Check)
	if err != nil || len(check) != 1 || check[0].Argv[1] != "-s" {
		t.Fatalf("Check commands = %v, err %v", check, err)
	}

	exec, err := a.CommandsForPhase(ctx, plugin.Execute)
	if err != nil || len(exec) != 1 || !exec[0].RequiresElevate {
		t.Fatalf("Execute commands = %v, err %v", exec, err)
	}
}

func TestAptDryRunUsesSimulateFlag(t *testing.T) {
	a := &Apt{DryRun: true}
	exec, err := a.CommandsForPhase(context.Background(), plugin.Execute)
	if err != nil || exec[0].Argv[1] != "-s" {
		t.Fatalf("dry-run exec commands = %v, err %v", exec, err)
	}
}

func TestAptCountPackagesParsesSummaryLine(t *testing.T) {
	a := &Apt{}
	out := []byte("12 upgraded, 3 newly installed, 0 to remove and 0 not upgraded.\n")
	if got := a.CountPackages(plugin.Execute, out); got != 15 {
		t.Fatalf("CountPackages = %d, want 15", got)
	}
}

func TestFlatpakSupportsSeparateDownload(t *testing.T) {
	f := &Flatpak{}
	if !f.Descriptor().Capabilities.SupportsSeparateDownload {
		t.Fatal("expected SupportsSeparateDownload = true")
	}
	dl, err := f.CommandsForPhase(context.Background(), plugin.Download)
	if err != nil || len(dl) != 1 {
		t.Fatalf("Download commands = %v, err %v", dl, err)
	}
}

func TestPipUserCountsInstalledPackages(t *testing.T) {
	p := &PipUser{}
	out := []byte("Successfully installed requests-2.31.0 urllib3-2.0.7\n")
	if got := p.CountPackages(plugin.Execute, out); got != 2 {
		t.Fatalf("CountPackages = %d, want 2", got)
	}
}

func TestNoopHasNoCommandsForAnyPhase(t *testing.T) {
	n := &Noop{}
	for _, phase := range plugin.Phases {
		cmds, err := n.CommandsForPhase(context.Background(), phase)
		if err != nil || len(cmds) != 0 {
			t.Fatalf("phase %v commands = %v, err %v", phase, cmds, err)
		}
	}
}

func TestNoopNameDefaultsWhenUnset(t *testing.T) {
	n := &Noop{}
	if n.Name() != "noop" {
		t.Fatalf("Name() = %q, want noop", n.Name())
	}
	n2 := &Noop{PluginName: "noop-2"}
	if n2.Name() != "noop-2" {
		t.Fatalf("Name() = %q, want noop-2", n2.Name())
	}
}
