package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	glog "github.com/magicsong/color-glog"
	"github.com/peterbourgon/ff/v3"
	"github.com/updraft-sh/updraft/cmd/updraft/channel"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/platform"
	"github.com/updraft-sh/updraft/cmd/updraft/types"
	"github.com/updraft-sh/updraft/cmd/updraft/utils"
	"gopkg.in/yaml.v3"
)

// RegisterCommon wires the flags every subcommand understands.
func RegisterCommon(fs *flag.FlagSet, flags *types.CliFlags) {
	fs.StringVar(&flags.Verbosity, "v", "3", "Log verbosity. Integer value from 0 to 9")
	fs.StringVar(&flags.Branch, "branch", "", "Git branch to derive the channel from (default: autodetected)")
	fs.StringVar(&flags.Channel, "channel", "", "Explicit channel name (still sanitized) instead of deriving one from the branch")
	fs.StringVar(&flags.ConfPath, "conf", constants.DefaultConfPath, "Path to the tauri.conf.json app descriptor")
	fs.StringVar(&flags.ProfilePath, "profile", "", fmt.Sprintf("Path to a publishing profile (default: %s when present)", constants.DefaultProfilePath))
	fs.String("config", "", "Plain config file with one flag per line")
}

// RegisterUpload wires the upload-only flags.
func RegisterUpload(fs *flag.FlagSet, flags *types.CliFlags) {
	fs.StringVar(&flags.Platform, "platform", platform.Detect(), fmt.Sprintf("Platform tag to publish, one of %s", platform.Tags()))
	fs.StringVar(&flags.ReleaseDir, "release-dir", constants.DefaultReleaseDir, "Directory holding the built bundles")
	fs.StringVar(&flags.Version, "version", "", "Release version (default: the descriptor's version)")
	fs.StringVar(&flags.Notes, "notes", "", "Release notes line for the channel manifest; ignored when the manifest is already current")
	fs.BoolVar(&flags.ManifestOnly, "manifest-only", false, "Skip artifact uploads and only reconcile the channel manifest")
	fs.BoolVar(&flags.Cleanup, "cleanup", false, "Remove the local bundle and signature after a successful publish")
}

// ParseOptions is the shared ff configuration: flags beat UPDRAFT_*
// environment variables beat the optional plain config file.
func ParseOptions() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix(constants.EnvVarPrefix),
		ff.WithEnvVarSplit(","),
	}
}

// SetupLogging forces glog to stderr and applies -v, which lives in
// glog's global flag set rather than ours.
func SetupLogging(flags *types.CliFlags) {
	flag.Set("logtostderr", "true")
	vFlag := flag.Lookup("v")
	flag.CommandLine.Parse(nil)
	vFlag.Value.Set(flags.Verbosity)
}

// Channel resolves the effective channel for this invocation: the
// explicit -channel when given, otherwise the sanitized branch name.
func Channel(ctx context.Context, flags *types.CliFlags) (string, error) {
	if flags.Channel != "" {
		return channel.Resolve(flags.Channel)
	}
	branch := flags.Branch
	if branch == "" {
		var err error
		if branch, err = channel.CurrentBranch(ctx); err != nil {
			return "", err
		}
		glog.V(2).Infof("autodetected branch %s", branch)
	}
	return channel.Resolve(branch)
}

// LoadProfile reads the optional publishing profile. A missing file
// is only an error when the path was given explicitly.
func LoadProfile(flags *types.CliFlags) (*types.Profile, error) {
	path := flags.ProfilePath
	explicit := path != ""
	if !explicit {
		path = constants.DefaultProfilePath
	}
	if !utils.IsFileExists(path) {
		if explicit {
			return nil, fmt.Errorf("publishing profile %s not found", path)
		}
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading publishing profile: %w", err)
	}
	profile := &types.Profile{}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parsing publishing profile %s: %w", path, err)
	}
	if profile.Version != constants.ProfileVersion {
		return nil, fmt.Errorf("unsupported publishing profile version %q in %s, want %q", profile.Version, path, constants.ProfileVersion)
	}
	glog.V(2).Infof("loaded publishing profile %s", path)
	return profile, nil
}

// ValidateUpload fills the platform default in and rejects tags the
// registry does not know.
func ValidateUpload(flags *types.CliFlags) (platform.Target, error) {
	tag := flags.Platform
	if tag == "" {
		return platform.Target{}, fmt.Errorf("cannot detect a platform tag for %s/%s, pass -platform (one of %s)", runtime.GOOS, runtime.GOARCH, platform.Tags())
	}
	target, ok := platform.Lookup(tag)
	if !ok {
		return platform.Target{}, fmt.Errorf("unknown platform %q, expected one of %s", tag, platform.Tags())
	}
	flags.Platform = target.Tag
	return target, nil
}
