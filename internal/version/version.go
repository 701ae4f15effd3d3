package version

import (
	"runtime"
	"strings"
	"time"
)

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// String is Version with the commit appended, unless the commit is unknown
// or already part of Version (git-describe output).
func String() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		v = "dev"
	}
	c := strings.TrimSpace(Commit)
	if c == "" || c == "none" || strings.Contains(v, c) {
		return v
	}
	return v + "+" + c
}
