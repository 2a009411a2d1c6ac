// Package platform identifies the running OS and whether it supports the
// POSIX pseudo-terminal subsystem the plugin executor depends on.
package platform

import "runtime"

// Platform identifies the current OS platform.
type Platform string

const (
	// Darwin represents macOS.
	Darwin Platform = "darwin"
	// Linux represents Linux distributions.
	Linux Platform = "linux"
)

// Current returns the platform for the running OS.
func Current() Platform {
	return Platform(runtime.GOOS)
}

// SupportsPTY reports whether the current platform offers a POSIX PTY.
// Per spec §1/§4.5, anything else degrades to a non-interactive streaming
// fallback, which is out of scope here.
func SupportsPTY() bool {
	switch Current() {
	case Darwin, Linux:
		return true
	default:
		return false
	}
}
