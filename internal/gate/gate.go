// Package gate decides whether a scan can reuse the previous snapshot or
// must run the full pipeline.
package gate

import (
	"log/slog"
	"path/filepath"
	"strings"

	"depgate/internal/git"
)

// buildFiles are build-declaration file names across the supported JVM
// build systems (Maven, Gradle, Bazel, Ant, Buildr, sbt).
var buildFiles = map[string]struct{}{
	"pom.xml":             {},
	"build.gradle":        {},
	"build.gradle.kts":    {},
	"settings.gradle":     {},
	"settings.gradle.kts": {},
	"libs.versions.toml":  {},
	"build":               {},
	"build.bazel":         {},
	"workspace":           {},
	"workspace.bazel":     {},
	"module.bazel":        {},
	"build.xml":           {},
	"ivy.xml":             {},
	"buildfile":           {},
	"build.sbt":           {},
}

// lockFiles are dependency-lock file names.
var lockFiles = map[string]struct{}{
	"gradle.lockfile":    {},
	"maven_install.json": {},
	"ivy.lock":           {},
	"build.sbt.lock":     {},
	"dependencies.lock":  {},
}

// Classification says why a path is scan-relevant.
type Classification int

const (
	ClassNone Classification = iota
	ClassBuildFile
	ClassLockFile
)

// Classify buckets one changed path.
func Classify(path string) Classification {
	base := strings.ToLower(filepath.Base(path))
	if _, ok := lockFiles[base]; ok {
		return ClassLockFile
	}
	if strings.HasSuffix(base, ".lockfile") {
		return ClassLockFile
	}
	if _, ok := buildFiles[base]; ok {
		return ClassBuildFile
	}
	// sbt build definitions live under project/.
	dir := strings.ToLower(filepath.ToSlash(filepath.Dir(path)))
	if (dir == "project" || strings.HasSuffix(dir, "/project")) &&
		(strings.HasSuffix(base, ".sbt") || strings.HasSuffix(base, ".scala")) {
		return ClassBuildFile
	}
	return ClassNone
}

// Decision is the gate outcome with the evidence behind it.
type Decision struct {
	Rescan  bool
	Reason  string
	Matched []string // the changed paths that forced the rescan
}

// Decide inspects the changed-file set since the last scan point. If no
// build-declaration or dependency-lock file changed, the previous snapshot
// can be reused. This is a heuristic: a dependency re-resolution with no
// local file change is a known, accepted gap; callers can force a rescan.
func Decide(changed []string) Decision {
	var matched []string
	for _, path := range changed {
		if Classify(path) != ClassNone {
			matched = append(matched, path)
		}
	}
	if len(matched) == 0 {
		return Decision{Rescan: false, Reason: "no build or lock files changed"}
	}
	return Decision{
		Rescan:  true,
		Reason:  "build or lock files changed",
		Matched: matched,
	}
}

// ShouldRescan diffs the repository against the last scan point and applies
// Decide. A diff failure (missing ref, not a repository) forces a full
// rescan rather than risking a stale verdict.
func ShouldRescan(client git.IClient, directory, sinceRef string, logger *slog.Logger) Decision {
	if logger == nil {
		logger = slog.Default()
	}
	if sinceRef == "" {
		return Decision{Rescan: true, Reason: "no previous scan point"}
	}
	changed, err := client.ChangedFiles(directory, sinceRef)
	if err != nil {
		logger.Warn("changed-file diff failed, forcing full rescan", "since", sinceRef, "error", err)
		return Decision{Rescan: true, Reason: "changed-file diff failed"}
	}
	d := Decide(changed)
	logger.Debug("incremental gate decision", "rescan", d.Rescan, "reason", d.Reason, "changed", len(changed))
	return d
}
