package artifacts

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	glog "github.com/magicsong/color-glog"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/platform"
)

var (
	ErrMissing          = errors.New("artifact missing")
	ErrAmbiguous        = errors.New("artifact ambiguous")
	ErrSignatureMissing = errors.New("signature missing")
)

// Bundle is one located installer artifact plus its detached
// signature.
type Bundle struct {
	Path          string
	Name          string
	SignaturePath string
}

// Locate finds exactly one installer bundle for the target under
// root. Patterns are tried in order; the first pattern with any match
// must match exactly one file, and that file's sibling .sig must
// exist. Read-only.
func Locate(root string, target platform.Target, patternOverride string) (*Bundle, error) {
	patterns := target.Patterns
	if patternOverride != "" {
		patterns = []string{patternOverride}
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, "."+constants.SignatureFileExtension) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %s", ErrMissing, root, err)
	}
	for _, pattern := range patterns {
		var matches []string
		for _, f := range files {
			ok, err := filepath.Match(pattern, filepath.Base(f))
			if err != nil {
				return nil, fmt.Errorf("bad bundle pattern %q: %w", pattern, err)
			}
			if ok {
				matches = append(matches, f)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			return nil, fmt.Errorf("%w: pattern %q matches %s", ErrAmbiguous, pattern, strings.Join(matches, ", "))
		}
		found := matches[0]
		sig := fmt.Sprintf("%s.%s", found, constants.SignatureFileExtension)
		if _, err := os.Stat(sig); err != nil {
			return nil, fmt.Errorf("%w: expected %s", ErrSignatureMissing, sig)
		}
		glog.V(2).Infof("found %s bundle %s", target.Tag, found)
		return &Bundle{Path: found, Name: filepath.Base(found), SignaturePath: sig}, nil
	}
	return nil, fmt.Errorf("%w: no %s bundle under %s (patterns %s)", ErrMissing, target.Tag, root, strings.Join(patterns, ", "))
}

// ReadSignature loads a detached signature's content for embedding in
// the manifest. Build tools occasionally append a trailing newline;
// the updater expects the bare payload.
func ReadSignature(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSignatureMissing, path)
	}
	return strings.TrimSpace(string(data)), nil
}

// ChecksumFile renders sha256 digests of the given files in the
// format `shasum --check` accepts.
func ChecksumFile(paths ...string) ([]byte, error) {
	var b strings.Builder
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(data)
		fmt.Fprintf(&b, "%x  %s\n", sum, filepath.Base(path))
	}
	return []byte(b.String()), nil
}
