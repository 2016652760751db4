package updraft

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blang/semver"
	glog "github.com/magicsong/color-glog"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/updraft-sh/updraft/cmd/updraft/cli"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/signing"
	"github.com/updraft-sh/updraft/cmd/updraft/store"
	"github.com/updraft-sh/updraft/cmd/updraft/tauriconf"
	"github.com/updraft-sh/updraft/cmd/updraft/types"
	"github.com/updraft-sh/updraft/cmd/updraft/uploader"
)

// Run wires the command tree and executes one invocation, returning
// the process exit code: 0 on success, 1 on failure, 2 when the
// artifacts landed but the manifest did not.
func Run(buildFlags types.BuildFlags) int {
	flags := &types.CliFlags{}

	patchFS := flag.NewFlagSet("updraft patch", flag.ExitOnError)
	cli.RegisterCommon(patchFS, flags)
	patchCmd := &ffcli.Command{
		Name:       "patch",
		ShortUsage: "updraft patch [flags]",
		ShortHelp:  "Point the app descriptor's updater endpoints at this branch's channel",
		FlagSet:    patchFS,
		Options:    cli.ParseOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.SetupLogging(flags)
			return runPatch(ctx, flags)
		},
	}

	uploadFS := flag.NewFlagSet("updraft upload", flag.ExitOnError)
	cli.RegisterCommon(uploadFS, flags)
	cli.RegisterUpload(uploadFS, flags)
	uploadCmd := &ffcli.Command{
		Name:       "upload",
		ShortUsage: "updraft upload [flags]",
		ShortHelp:  "Upload this platform's bundle and reconcile the channel manifest",
		FlagSet:    uploadFS,
		Options:    cli.ParseOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.SetupLogging(flags)
			return runUpload(ctx, flags)
		},
	}

	versionCmd := &ffcli.Command{
		Name:       "version",
		ShortUsage: "updraft version",
		ShortHelp:  "Print version information",
		Exec: func(context.Context, []string) error {
			fmt.Printf("%s version: %s\n", constants.AppName, buildFlags.Version)
			return nil
		},
	}

	var root *ffcli.Command
	root = &ffcli.Command{
		Name:        constants.AppName,
		ShortUsage:  "updraft <subcommand> [flags]",
		FlagSet:     flag.NewFlagSet(constants.AppName, flag.ExitOnError),
		Subcommands: []*ffcli.Command{patchCmd, uploadCmd, versionCmd},
		Exec: func(context.Context, []string) error {
			fmt.Fprintln(os.Stderr, ffcli.DefaultUsageFunc(root))
			return flag.ErrHelp
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := root.ParseAndRun(ctx, os.Args[1:])
	switch {
	case err == nil:
		return constants.ExitOK
	case errors.Is(err, flag.ErrHelp):
		return constants.ExitFailure
	}
	glog.Errorf("%s", err)
	var partial *uploader.PartialError
	if errors.As(err, &partial) {
		glog.Errorf("artifacts are live; finish with: %s upload -manifest-only", constants.AppName)
		return constants.ExitPartial
	}
	return constants.ExitFailure
}

func runPatch(ctx context.Context, flags *types.CliFlags) error {
	profile, err := cli.LoadProfile(flags)
	if err != nil {
		return err
	}
	confPath := resolveConfPath(flags, profile)
	ch, err := cli.Channel(ctx, flags)
	if err != nil {
		return err
	}
	conf, err := tauriconf.Load(confPath)
	if err != nil {
		return err
	}
	changed, err := conf.SetChannel(ch)
	if err != nil {
		return err
	}
	if !changed {
		glog.Infof("%s already points at channel %s", confPath, ch)
		return nil
	}
	if err := conf.Save(); err != nil {
		return err
	}
	glog.Infof("patched %s for channel %s (%d updater endpoints)", confPath, ch, len(conf.Endpoints()))
	return nil
}

func runUpload(ctx context.Context, flags *types.CliFlags) error {
	profile, err := cli.LoadProfile(flags)
	if err != nil {
		return err
	}
	target, err := cli.ValidateUpload(flags)
	if err != nil {
		return err
	}
	ch, err := cli.Channel(ctx, flags)
	if err != nil {
		return err
	}

	confPath := resolveConfPath(flags, profile)
	version := flags.Version
	var endpoints []string
	conf, err := tauriconf.Load(confPath)
	switch {
	case err == nil:
		if version == "" {
			version = conf.Version()
		}
		endpoints = conf.Endpoints()
	case errors.Is(err, tauriconf.ErrNotFound) && flags.Version != "":
		glog.V(2).Infof("no descriptor at %s, trusting -version", confPath)
	default:
		return err
	}
	if version == "" {
		return fmt.Errorf("no release version: %s declares none and -version was not given", confPath)
	}
	if _, err := semver.ParseTolerant(version); err != nil {
		glog.Warningf("version %q is not semver, channel ordering falls back to string comparison", version)
	}

	cfg, err := store.ConfigFromEnv()
	if err != nil {
		return err
	}
	st, err := store.NewClient(cfg)
	if err != nil {
		return err
	}
	signer, err := signing.FromEnv()
	if err != nil {
		return err
	}

	opts := uploader.Options{
		Channel:      ch,
		Target:       target,
		ReleaseDir:   flags.ReleaseDir,
		Version:      version,
		Notes:        flags.Notes,
		Endpoints:    endpoints,
		Signer:       signer,
		ManifestOnly: flags.ManifestOnly,
		Cleanup:      flags.Cleanup,
	}
	if profile != nil {
		if opts.Notes == "" {
			opts.Notes = profile.Notes
		}
		if plat, ok := profile.Platforms[target.Tag]; ok {
			if plat.ReleaseDir != "" && flags.ReleaseDir == constants.DefaultReleaseDir {
				opts.ReleaseDir = plat.ReleaseDir
			}
			opts.Pattern = plat.Pattern
		}
	}

	res, err := uploader.Run(ctx, st, opts)
	if err != nil {
		return err
	}
	glog.Infof("published %s %s to %s", target.Tag, version, res.URL)
	return nil
}

// resolveConfPath lets the profile move the descriptor unless the
// flag was set to something other than its default.
func resolveConfPath(flags *types.CliFlags, profile *types.Profile) string {
	if profile != nil && profile.Conf != "" && flags.ConfPath == constants.DefaultConfPath {
		return profile.Conf
	}
	return flags.ConfPath
}
