package types

type BuildFlags struct {
	Version string
}

type CliFlags struct {
	Verbosity   string
	Branch      string
	Channel     string
	ConfPath    string
	ProfilePath string

	Platform     string
	ReleaseDir   string
	Version      string
	Notes        string
	Cleanup      bool
	ManifestOnly bool
}

type PlatformProfile struct {
	Pattern    string `yaml:"pattern,omitempty"`
	ReleaseDir string `yaml:"releaseDir,omitempty"`
}

// Profile is the optional publishing profile (updraft.yaml) checked
// into the application repository next to the build scripts.
type Profile struct {
	Version   string                     `yaml:"version"`
	Conf      string                     `yaml:"conf,omitempty"`
	Notes     string                     `yaml:"notes,omitempty"`
	Platforms map[string]PlatformProfile `yaml:"platforms,omitempty"`
}
