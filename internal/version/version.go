// Package version reports which statusnotify build is running. The values
// are stamped by the release workflow, for example:
//
//	go build -ldflags="-X github.com/andywolf/statusnotify/internal/version.Version=v0.4.0 \
//	  -X github.com/andywolf/statusnotify/internal/version.Commit=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version, "dev" for local builds.
func Short() string {
	return Version
}

// shortCommit trims a full SHA to the seven characters GitHub shows.
func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Info is the one-line form printed by "statusnotify version".
func Info() string {
	return fmt.Sprintf("statusnotify %s (commit: %s, built: %s, go: %s)",
		Version, shortCommit(), BuildDate, runtime.Version())
}

// Full is printed by "statusnotify version --full".
func Full() string {
	var b strings.Builder
	fmt.Fprintf(&b, "statusnotify %s: GitHub project status notifier\n", Version)
	fmt.Fprintf(&b, "  Commit:     %s\n", Commit)
	fmt.Fprintf(&b, "  Built:      %s\n", BuildDate)
	fmt.Fprintf(&b, "  Go version: %s\n", runtime.Version())
	fmt.Fprintf(&b, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "  User-Agent: %s", UserAgent())
	return b.String()
}

// UserAgent identifies statusnotify to the GitHub API.
func UserAgent() string {
	return "statusnotify/" + Version
}
