package mutexmgr

import (
	"testing"
	"time"
)

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"pkgmgr:apt":      true,
		"system:dpkg-lock": true,
		"runtime:node_14":  true,
		"Pkgmgr:apt":       false, // uppercase
		"pkgmgronly":       false, // missing category separator
		"pkgmgr:":          false, // empty resource
	}
	for name, want := range cases {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m := New(nil)
	if err := m.Acquire("alpha", []string{"pkgmgr:apt"}, time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if holder, held := m.Holder("pkgmgr:apt"); !held || holder != "alpha" {
		t.Fatalf("Holder = (%q, %v), want (alpha, true)", holder, held)
	}
	m.Release("alpha", []string{"pkgmgr:apt"})
	if _, held := m.Holder("pkgmgr:apt"); held {
		t.Fatal("mutex still held after release")
	}
}

func TestAcquireAllOrNone(t *testing.T) {
	m := New(nil)
	if err := m.Acquire("alpha", []string{"pkgmgr:apt"}, time.Second); err != nil {
		t.Fatalf("Acquire alpha: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.Acquire("beta", []string{"pkgmgr:apt", "system:dpkg-lock"}, 100*time.Millisecond)
	}()

	select {
	case err := <-done:
		if err != ErrTimeout {
			t.Fatalf("beta's acquire = %v, want ErrTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("beta's acquire never returned")
	}

	// system:dpkg-lock must never have been granted in isolation.
	if _, held := m.Holder("system:dpkg-lock"); held {
		t.Fatal("partial hold observed: system:dpkg-lock granted without pkgmgr:apt")
	}
}

func TestReleaseWakesWaiter(t *testing.T) {
	m := New(nil)
	if err := m.Acquire("alpha", []string{"pkgmgr:apt"}, time.Second); err != nil {
		t.Fatalf("Acquire alpha: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.Acquire("beta", []string{"pkgmgr:apt"}, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Release("alpha", []string{"pkgmgr:apt"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("beta's acquire after release = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("beta was never woken after release")
	}
	if holder, _ := m.Holder("pkgmgr:apt"); holder != "beta" {
		t.Fatalf("Holder = %q, want beta", holder)
	}
}

func TestIllegalReleaseIgnored(t *testing.T) {
	m := New(nil)
	if err := m.Acquire("alpha", []string{"pkgmgr:apt"}, time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	m.Release("beta", []string{"pkgmgr:apt"}) // beta never held it
	if holder, held := m.Holder("pkgmgr:apt"); !held || holder != "alpha" {
		t.Fatalf("Holder = (%q, %v), want (alpha, true) after illegal release", holder, held)
	}
}

func TestDeadlockDetection(t *testing.T) {
	m := New(nil)
	if err := m.Acquire("alpha", []string{"pkgmgr:apt"}, time.Second); err != nil {
		t.Fatalf("Acquire alpha/apt: %v", err)
	}
	if err := m.Acquire("beta", []string{"pkgmgr:flatpak"}, time.Second); err != nil {
		t.Fatalf("Acquire beta/flatpak: %v", err)
	}

	betaBlocked := make(chan error, 1)
	go func() {
		betaBlocked <- m.Acquire("beta", []string{"pkgmgr:apt"}, 2*time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	// alpha now requests flatpak, held by beta, which is itself waiting
	// on apt, held by alpha: a 2-cycle.
	err := m.Acquire("alpha", []string{"pkgmgr:flatpak"}, 2*time.Second)
	if err != ErrDeadlock {
		t.Fatalf("alpha's cyclic acquire = %v, want ErrDeadlock", err)
	}

	// Clean up: release apt so beta's wait resolves.
	m.Release("alpha", []string{"pkgmgr:apt"})
	if err := <-betaBlocked; err != nil {
		t.Fatalf("beta's acquire after cleanup = %v", err)
	}
}
