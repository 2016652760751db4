package cli

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/gobuffalo/envy"
	"github.com/peterbourgon/ff/v3"
	"github.com/stretchr/testify/require"
	"github.com/updraft-sh/updraft/cmd/updraft/types"
)

const profileYAML = `version: "1"
conf: desktop/src-tauri/tauri.conf.json
notes: Nightly build
platforms:
  windows-x64:
    pattern: "*.msi.zip"
    releaseDir: desktop/src-tauri/target/release/bundle/msi
`

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0644))

	flags := &types.CliFlags{ProfilePath: path}
	profile, err := LoadProfile(flags)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "desktop/src-tauri/tauri.conf.json", profile.Conf)
	require.Equal(t, "Nightly build", profile.Notes)
	win := profile.Platforms["windows-x64"]
	require.Equal(t, "*.msi.zip", win.Pattern)
	require.Equal(t, "desktop/src-tauri/target/release/bundle/msi", win.ReleaseDir)
}

func TestLoadProfileVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"9\"\n"), 0644))

	_, err := LoadProfile(&types.CliFlags{ProfilePath: path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "version")
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := LoadProfile(&types.CliFlags{ProfilePath: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)

	profile, err := LoadProfile(&types.CliFlags{})
	require.NoError(t, err)
	require.Nil(t, profile)
}

func TestValidateUpload(t *testing.T) {
	flags := &types.CliFlags{Platform: "windows-x64"}
	target, err := ValidateUpload(flags)
	require.NoError(t, err)
	require.Equal(t, "windows-x64", target.Tag)

	flags = &types.CliFlags{Platform: "darwin-x86_64"}
	target, err = ValidateUpload(flags)
	require.NoError(t, err)
	require.Equal(t, "macos-x64", target.Tag, "aliases should normalize to the canonical tag")
	require.Equal(t, "macos-x64", flags.Platform)

	_, err = ValidateUpload(&types.CliFlags{Platform: "amiga"})
	require.Error(t, err)

	_, err = ValidateUpload(&types.CliFlags{})
	require.Error(t, err)
}

func TestChannel(t *testing.T) {
	ctx := context.Background()

	got, err := Channel(ctx, &types.CliFlags{Channel: "Feature/X"})
	require.NoError(t, err)
	require.Equal(t, "feature-x", got)

	got, err = Channel(ctx, &types.CliFlags{Branch: "release/2.0"})
	require.NoError(t, err)
	require.Equal(t, "release-2-0", got)

	envy.Temp(func() {
		envy.Set("GITHUB_REF_NAME", "feature/New_Thing!!")
		got, err := Channel(ctx, &types.CliFlags{})
		require.NoError(t, err)
		require.Equal(t, "feature-new-thing", got)
	})
}

func TestParsePrecedence(t *testing.T) {
	parse := func(t *testing.T, args []string) *types.CliFlags {
		t.Helper()
		flags := &types.CliFlags{}
		fs := flag.NewFlagSet("updraft-test", flag.ContinueOnError)
		RegisterCommon(fs, flags)
		RegisterUpload(fs, flags)
		require.NoError(t, ff.Parse(fs, args, ParseOptions()...))
		return flags
	}

	t.Setenv("UPDRAFT_NOTES", "from the environment")
	flags := parse(t, nil)
	require.Equal(t, "from the environment", flags.Notes)

	flags = parse(t, []string{"-notes", "from the flag", "-platform", "linux-x64"})
	require.Equal(t, "from the flag", flags.Notes)
	require.Equal(t, "linux-x64", flags.Platform)
	require.False(t, flags.ManifestOnly)
}

func TestSetupLogging(t *testing.T) {
	SetupLogging(&types.CliFlags{Verbosity: "4"})
	require.Equal(t, "4", flag.Lookup("v").Value.String())
	require.Equal(t, "true", flag.Lookup("logtostderr").Value.String())
}
