// Package build carries the version of the binary and the details of the
// build that produced it.
package build

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version contains the current semantic version of portalshell.
const Version = "0.3.0"

const (
	commitKey      = "commit"
	commitDirtyKey = "commit_dirty"
)

// VersionDetails returns the structured details about the version.
func VersionDetails() map[string]string {
	v := Version
	if v[0] == 'v' {
		v = v[1:]
	}
	details := map[string]string{
		"version":    v,
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return details
	}
	var (
		commit string
		dirty  bool
	)
	for _, s := range buildInfo.Settings {
		switch s.Key {
		case "vcs.revision":
			commitLen := 10
			if len(s.Value) < commitLen {
				commitLen = len(s.Value)
			}
			commit = s.Value[:commitLen]
		case "vcs.modified":
			if s.Value == "true" {
				dirty = true
			}
		}
	}
	if commit == "" {
		return details
	}
	details[commitKey] = commit
	if dirty {
		details[commitDirtyKey] = "true"
	}
	return details
}

// FullVersion returns the version, commit and platform in a single line.
func FullVersion() string {
	details := VersionDetails()
	goVersionArch := fmt.Sprintf("%s, %s/%s", details["go_version"], details["go_os"], details["go_arch"])

	commit, ok := details[commitKey]
	if !ok || commit == "" {
		return fmt.Sprintf("%s (%s)", details["version"], goVersionArch)
	}
	if details[commitDirtyKey] == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit/%s, %s)", details["version"], commit, goVersionArch)
}
