package builtinplugins

import (
	"regexp"
	"strconv"
)

var aptSummaryRe = regexp.MustCompile(`(\d+) upgraded, (\d+) newly installed`)

// countAptPackages sums the "upgraded" and "newly installed" counts from
// apt-get's summary line, e.g. "12 upgraded, 3 newly installed, 0 to
// remove and 0 not upgraded."
func countAptPackages(output []byte) int {
	m := aptSummaryRe.FindSubmatch(output)
	if m == nil {
		return 0
	}
	a, _ := strconv.Atoi(string(m[1]))
	b, _ := strconv.Atoi(string(m[2]))
	return a + b
}

var flatpakSummaryRe = regexp.MustCompile(`(?m)^\s*(\d+)\.\s`)

// countFlatpakPackages counts numbered lines in flatpak's update listing.
func countFlatpakPackages(output []byte) int {
	return len(flatpakSummaryRe.FindAllIndex(output, -1))
}

var pipInstalledRe = regexp.MustCompile(`(?m)^Successfully installed\s+(.+)$`)

// countPipPackages counts the packages named on pip's "Successfully
// installed" line.
func countPipPackages(output []byte) int {
	m := pipInstalledRe.FindSubmatch(output)
	if m == nil {
		return 0
	}
	count := 1
	for _, c := range m[1] {
		if c == ' ' {
			count++
		}
	}
	return count
}
