package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	glog "github.com/magicsong/color-glog"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/platform"
	"github.com/updraft-sh/updraft/cmd/updraft/store"
)

// ErrNotConverged means the manifest kept moving underneath us for
// the whole attempt budget. The artifacts themselves are already
// uploaded when this comes back; re-running with -manifest-only
// finishes the job without re-pushing anything.
var ErrNotConverged = errors.New("manifest did not converge")

const manifestContentType = "application/json"

// Reconciler lands one platform's entry in a channel's shared
// manifest with optimistic concurrency: read, merge, conditional
// write, retry on conflict. CI jobs for other platforms race on the
// same object and the merge keeps every one of their entries.
type Reconciler struct {
	Store    store.Store
	Channel  string
	Notes    string // optional override for the generated notes line
	Attempts int
	Backoff  time.Duration // initial conflict backoff, jittered upward
}

func NewReconciler(st store.Store, channel string) *Reconciler {
	return &Reconciler{
		Store:    st,
		Channel:  channel,
		Attempts: constants.ReconcileAttempts,
		Backoff:  200 * time.Millisecond,
	}
}

// Publish runs the read-merge-write loop until the entry lands, the
// attempt budget runs out, or the store fails outright. On success it
// returns the manifest as written (or as found, when the entry was
// already current).
func (r *Reconciler) Publish(ctx context.Context, target platform.Target, e Entry) (*Manifest, error) {
	key := store.ManifestKey(r.Channel)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.Backoff
	bo.MaxElapsedTime = 0

	for attempt := 1; attempt <= r.Attempts; attempt++ {
		m, etag, err := r.read(ctx, key)
		if err != nil {
			return nil, err
		}
		if m == nil {
			fresh := New()
			fresh.Apply(target, e, r.Channel, r.Notes)
			data, err := fresh.Encode()
			if err != nil {
				return nil, err
			}
			err = r.Store.PutIfAbsent(ctx, key, data, manifestContentType)
			if err == nil {
				glog.V(2).Infof("created %s with %s %s", key, target.Tag, e.Version)
				return fresh, nil
			}
			if !errors.Is(err, store.ErrConflict) {
				return nil, err
			}
			// Lost the create race. The object exists now, so the
			// next pass reads it back and merges instead.
			glog.V(3).Infof("lost create race on %s, merging", key)
			continue
		}
		if !m.Apply(target, e, r.Channel, r.Notes) {
			if r.Notes != "" && r.Notes != m.Notes {
				glog.V(2).Infof("notes override skipped, %s %s is already current in %s", target.Tag, e.Version, key)
			} else {
				glog.V(2).Infof("%s already current for %s %s", key, target.Tag, e.Version)
			}
			return m, nil
		}
		data, err := m.Encode()
		if err != nil {
			return nil, err
		}
		err = r.Store.PutIfMatch(ctx, key, data, manifestContentType, etag)
		if err == nil {
			glog.V(2).Infof("reconciled %s for %s %s on attempt %d", key, target.Tag, e.Version, attempt)
			return m, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		wait := bo.NextBackOff()
		glog.V(3).Infof("manifest %s changed underneath us on attempt %d, retrying in %s", key, attempt, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrNotConverged, key, r.Attempts)
}

func (r *Reconciler) read(ctx context.Context, key string) (*Manifest, string, error) {
	obj, err := r.Store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	m, err := Parse(obj.Data)
	if err != nil {
		// Refuse to guess at a corrupt manifest. Overwriting it
		// blindly could drop other platforms' entries.
		return nil, "", fmt.Errorf("%s: %w", key, err)
	}
	return m, obj.ETag, nil
}
