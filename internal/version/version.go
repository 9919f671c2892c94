// Package version reports what a promstack binary is and which component
// images it writes into bundles by default. Build values come from -ldflags
// and fall back to the module build info of "go install" builds.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
)

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

// Info holds the build metadata for the binary.
type Info struct {
	Version    string      `json:"version"`
	GitCommit  string      `json:"gitCommit"`
	BuildDate  string      `json:"buildDate"`
	GoVersion  string      `json:"goVersion"`
	Platform   string      `json:"platform"`
	Components []Component `json:"components,omitempty"`
}

// Component is a stack component with its default image and the version
// range generated manifests rely on.
type Component struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Requires string `json:"requires,omitempty"`
}

// GetInfo returns the current build information.
func GetInfo() Info {
	bi, _ := debug.ReadBuildInfo()

	return resolve(version, gitCommit, buildDate, bi)
}

// resolve fills values left at their defaults from the module build info.
func resolve(v, commit, date string, bi *debug.BuildInfo) Info {
	if bi != nil {
		if v == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}

		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "none":
				commit = s.Value
			case s.Key == "vcs.time" && date == "unknown":
				date = s.Value
			}
		}
	}

	return Info{
		Version:   v,
		GitCommit: shortCommit(commit),
		BuildDate: date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// WithComponents returns a copy of i listing images, sorted by component
// name, with the matching entries of requires.
func (i Info) WithComponents(images, requires map[string]string) Info {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}

	sort.Strings(names)

	i.Components = make([]Component, len(names))
	for n, name := range names {
		i.Components[n] = Component{Name: name, Image: images[name], Requires: requires[name]}
	}

	return i
}

// String returns a human-readable single-line version string.
func (i Info) String() string {
	return fmt.Sprintf("promstack %s (commit: %s, built: %s, %s %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// JSON returns the version info as indented JSON.
func (i Info) JSON() (string, error) {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling version info: %w", err)
	}

	return string(data), nil
}

// shortCommit truncates a commit SHA to 7 characters.
func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}

	return commit
}
