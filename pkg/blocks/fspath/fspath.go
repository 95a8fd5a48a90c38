// Package fspath holds the path allow-list shared by the filesystem blocks.
package fspath

import "strings"

// allowedPrefixes are the only roots the filesystem blocks may touch. Paths
// are matched on their literal prefix; anything else is refused before any
// I/O happens.
var allowedPrefixes = []string{
	"/tmp/beamline/",
	"/var/lib/beamline/data/",
	"./data/",
}

// Allowed reports whether the path sits under one of the permitted roots.
func Allowed(path string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
