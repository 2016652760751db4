package platform

import (
	"runtime"
	"strings"
)

// A Target describes one publishable platform: the canonical tag used
// in store keys and CLI flags, the alias tags older application
// builds look up in the manifest, and the bundle filename patterns
// the build tooling emits for it.
type Target struct {
	Tag      string
	OS       string
	Arch     string
	Aliases  []string
	Patterns []string
}

var targets = []Target{
	{
		Tag:      "windows-x64",
		OS:       "windows",
		Arch:     "x64",
		Aliases:  []string{"windows-x86_64", "win64"},
		Patterns: []string{"*.msi.zip", "*.nsis.zip"},
	},
	{
		Tag:      "windows-x86",
		OS:       "windows",
		Arch:     "x86",
		Aliases:  []string{"windows-i686", "win32"},
		Patterns: []string{"*.msi.zip", "*.nsis.zip"},
	},
	{
		Tag:      "linux-x64",
		OS:       "linux",
		Arch:     "x64",
		Aliases:  []string{"linux-x86_64", "linux"},
		Patterns: []string{"*.AppImage.tar.gz"},
	},
	{
		Tag:      "macos-x64",
		OS:       "macos",
		Arch:     "x64",
		Aliases:  []string{"darwin-x86_64", "darwin"},
		Patterns: []string{"*.app.tar.gz"},
	},
	{
		Tag:      "macos-arm64",
		OS:       "macos",
		Arch:     "arm64",
		Aliases:  []string{"darwin-aarch64"},
		Patterns: []string{"*.app.tar.gz"},
	},
}

// Lookup finds a target by canonical tag or by one of its aliases.
func Lookup(tag string) (Target, bool) {
	for _, t := range targets {
		if t.Tag == tag {
			return t, true
		}
		for _, alias := range t.Aliases {
			if alias == tag {
				return t, true
			}
		}
	}
	return Target{}, false
}

// Tags lists the canonical tags, for usage messages.
func Tags() string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Tag
	}
	return strings.Join(names, "/")
}

// ManifestTags returns every manifest key this target owns, canonical
// tag first.
func (t Target) ManifestTags() []string {
	return append([]string{t.Tag}, t.Aliases...)
}

// Detect maps the running machine onto a canonical tag, for use as
// the -platform flag default. Release builders cross-compile rarely
// enough that the host platform is the right guess.
func Detect() string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "386" {
			return "windows-x86"
		}
		return "windows-x64"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "macos-arm64"
		}
		return "macos-x64"
	case "linux":
		if runtime.GOARCH == "amd64" {
			return "linux-x64"
		}
	}
	return ""
}
