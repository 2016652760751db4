package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	glog "github.com/magicsong/color-glog"
	"github.com/updraft-sh/updraft/cmd/updraft/artifacts"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/manifest"
	"github.com/updraft-sh/updraft/cmd/updraft/platform"
	"github.com/updraft-sh/updraft/cmd/updraft/signing"
	"github.com/updraft-sh/updraft/cmd/updraft/store"
	"golang.org/x/sync/errgroup"
)

// PartialError reports the halfway state the retry budget can leave
// behind: every artifact object is durably stored but the channel
// manifest does not reference the new release yet. Re-running with
// -manifest-only completes the publish without re-uploading.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("artifacts uploaded but manifest not reconciled: %s", e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Options carries one fully resolved publish: the channel and target
// are already validated and the version is final by the time Run sees
// them.
type Options struct {
	Channel      string
	Target       platform.Target
	ReleaseDir   string
	Pattern      string // optional artifact glob override from the profile
	Version      string
	Notes        string // optional override for the generated notes line
	Endpoints    []string
	Signer       *signing.Signer
	ManifestOnly bool
	Cleanup      bool
}

// Result describes what a publish actually did, for the final log
// line and for tests.
type Result struct {
	Bundle      *artifacts.Bundle
	ArtifactKey string
	URL         string
	Uploaded    []string
	Manifest    *manifest.Manifest
}

// Run publishes one platform's release into a channel: locate the
// bundle, push the objects in parallel, then reconcile the shared
// manifest. Upload failures leave the manifest untouched; reconcile
// failures after the uploads landed come back as a PartialError.
func Run(ctx context.Context, st store.Store, opts Options) (*Result, error) {
	bundle, err := artifacts.Locate(opts.ReleaseDir, opts.Target, opts.Pattern)
	if err != nil {
		return nil, err
	}
	signature, err := artifacts.ReadSignature(bundle.SignaturePath)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("publishing %s as %s %s into channel %s", bundle.Name, opts.Target.Tag, opts.Version, opts.Channel)

	res := &Result{
		Bundle:      bundle,
		ArtifactKey: store.ArtifactKey(opts.Channel, opts.Target.Tag, opts.Version, bundle.Name),
	}
	res.URL = st.PublicURL(res.ArtifactKey)

	if opts.ManifestOnly {
		glog.Info("manifest-only publish, skipping artifact uploads")
	} else {
		if res.Uploaded, err = uploadObjects(ctx, st, opts, bundle); err != nil {
			return nil, err
		}
	}

	r := manifest.NewReconciler(st, opts.Channel)
	r.Notes = opts.Notes
	entry := manifest.Entry{
		URL:       res.URL,
		Signature: signature,
		Version:   opts.Version,
		PubDate:   time.Now().UTC().Truncate(time.Second),
	}
	if res.Manifest, err = r.Publish(ctx, opts.Target, entry); err != nil {
		return res, &PartialError{Err: err}
	}
	glog.Infof("channel %s now at version %s (%d platform entries)", opts.Channel, res.Manifest.Version, len(res.Manifest.Platforms))

	checkEndpoints(opts.Endpoints, opts.Channel)

	if opts.Cleanup {
		cleanup(bundle)
	}
	return res, nil
}

func uploadObjects(ctx context.Context, st store.Store, opts Options, bundle *artifacts.Bundle) ([]string, error) {
	data, err := os.ReadFile(bundle.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", bundle.Path, err)
	}
	sigData, err := os.ReadFile(bundle.SignaturePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", bundle.SignaturePath, err)
	}
	sums, err := artifacts.ChecksumFile(bundle.Path, bundle.SignaturePath)
	if err != nil {
		return nil, err
	}

	artifactKey := store.ArtifactKey(opts.Channel, opts.Target.Tag, opts.Version, bundle.Name)
	sigKey := artifactKey + "." + constants.SignatureFileExtension
	sumsKey := store.ArtifactKey(opts.Channel, opts.Target.Tag, opts.Version,
		fmt.Sprintf("%s_%s", opts.Version, constants.ChecksumFileSuffix))

	keys := []string{artifactKey, sigKey, sumsKey}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.V(2).Infof("uploading %s (%d bytes)", artifactKey, len(data))
		return st.Put(gctx, artifactKey, data, contentType(bundle.Name))
	})
	g.Go(func() error {
		return st.Put(gctx, sigKey, sigData, "text/plain")
	})
	g.Go(func() error {
		return st.Put(gctx, sumsKey, sums, "text/plain")
	})
	if opts.Signer != nil {
		ascKey := artifactKey + "." + constants.ArmoredSigExtension
		keys = append(keys, ascKey)
		g.Go(func() error {
			armored, err := opts.Signer.Sign(data)
			if err != nil {
				return fmt.Errorf("countersigning %s: %w", bundle.Name, err)
			}
			return st.Put(gctx, ascKey, []byte(armored), "text/plain")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	glog.V(2).Infof("uploaded %d objects for %s", len(keys), opts.Target.Tag)
	return keys, nil
}

// checkEndpoints warns when none of the descriptor's updater
// endpoints points at this channel, which usually means the bundle
// was built from an unpatched descriptor and installed apps will poll
// some other channel. Loud but not fatal: the objects are already
// correct.
func checkEndpoints(endpoints []string, channel string) {
	if len(endpoints) == 0 {
		glog.V(3).Info("no descriptor endpoints to check")
		return
	}
	needle := "/" + channel + "/"
	for _, endpoint := range endpoints {
		if strings.Contains(endpoint, needle) {
			glog.V(2).Infof("descriptor endpoint %s covers channel %s", endpoint, channel)
			return
		}
	}
	glog.Errorf("none of the descriptor's updater endpoints references channel %s; the app was likely built from an unpatched descriptor", channel)
}

func cleanup(bundle *artifacts.Bundle) {
	for _, path := range []string{bundle.Path, bundle.SignaturePath} {
		if err := os.Remove(path); err != nil {
			glog.Errorf("cleanup of %s failed: %s", path, err)
		} else {
			glog.V(2).Infof("removed %s", path)
		}
	}
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".zip":
		return "application/zip"
	case ".gz", ".tgz":
		return "application/gzip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
