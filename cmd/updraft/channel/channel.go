package channel

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gobuffalo/envy"
	glog "github.com/magicsong/color-glog"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
)

// ErrInvalid means a branch name sanitized down to nothing usable.
var ErrInvalid = errors.New("invalid channel")

// Resolve derives the release channel identifier for a branch name.
// The result is stable for a given input and safe as a path or
// DNS-ish segment: lowercase, [a-z0-9-] only, runs of other
// characters folded into single dashes, at most MaxChannelLength
// bytes. Distinct branches may collide after sanitization; that is
// accepted.
func Resolve(branch string) (string, error) {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(branch) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if len(name) > constants.MaxChannelLength {
		name = strings.TrimRight(name[:constants.MaxChannelLength], "-")
	}
	if name == "" {
		return "", fmt.Errorf("%w: branch %q has no usable characters", ErrInvalid, branch)
	}
	glog.V(4).Infof("resolved branch %q to channel %q", branch, name)
	return name, nil
}

// CurrentBranch reports the branch this invocation publishes from.
// CI exports it; local runs fall back to asking git.
func CurrentBranch(ctx context.Context) (string, error) {
	for _, name := range []string{"GITHUB_REF_NAME", "BRANCH_NAME"} {
		if v := envy.Get(name, ""); v != "" {
			glog.V(4).Infof("branch %q from $%s", v, name)
			return v, nil
		}
	}
	out, err := exec.CommandContext(ctx, "git", "branch", "--show-current").Output()
	if err != nil {
		return "", fmt.Errorf("no branch configured and git lookup failed: %w", err)
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" {
		return "", errors.New("no branch configured and git reports a detached HEAD")
	}
	return branch, nil
}
