package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/platform"
)

// Entry is one platform's record in a channel manifest: where to
// fetch the bundle, the detached signature payload the updater
// verifies before installing, and the version it carries.
type Entry struct {
	URL       string    `json:"url"`
	Signature string    `json:"signature"`
	Version   string    `json:"version"`
	PubDate   time.Time `json:"pub_date"`
}

// same ignores PubDate so a retried upload of an identical release
// does not count as a change.
func (e Entry) same(other Entry) bool {
	return e.URL == other.URL && e.Signature == other.Signature && e.Version == other.Version
}

// Manifest is the shared per-channel document the desktop updater
// polls. Platforms maps manifest tags (canonical and alias) to
// entries; the top-level version is a high-water mark across every
// upload the channel has seen, never recomputed downward.
type Manifest struct {
	Version   string           `json:"version"`
	Notes     string           `json:"notes"`
	PubDate   time.Time        `json:"pub_date"`
	Platforms map[string]Entry `json:"platforms"`
}

func New() *Manifest {
	return &Manifest{Platforms: map[string]Entry{}}
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest unreadable: %w", err)
	}
	if m.Platforms == nil {
		m.Platforms = map[string]Entry{}
	}
	return &m, nil
}

// Encode renders the manifest deterministically: indented, keys
// sorted, trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Apply merges one platform's entry under every tag the target owns.
// The merge is commutative across targets and idempotent per target:
// identical resubmissions change nothing, entries for other targets
// are never touched, and the top-level version only moves up. Notes
// are the override when given, otherwise generated from the final
// top-level version so merge order cannot change them. Returns
// whether the manifest changed.
func (m *Manifest) Apply(target platform.Target, e Entry, channel, notesOverride string) bool {
	changed := false
	for _, tag := range target.ManifestTags() {
		if old, ok := m.Platforms[tag]; ok && old.same(e) {
			continue
		}
		m.Platforms[tag] = e
		changed = true
	}
	if !changed {
		return false
	}
	if versionLess(m.Version, e.Version) {
		m.Version = e.Version
	}
	if e.PubDate.After(m.PubDate) {
		m.PubDate = e.PubDate
	}
	if notesOverride != "" {
		m.Notes = notesOverride
	} else {
		m.Notes = fmt.Sprintf(constants.NotesFormat, channel, m.Version)
	}
	return true
}

// versionLess orders release versions semver-first with a plain
// string fallback for anything unparseable, treating empty as lowest.
// Ties are not less, which keeps retried uploads idempotent.
func versionLess(a, b string) bool {
	if a == b || b == "" {
		return false
	}
	if a == "" {
		return true
	}
	av, aerr := semver.Make(strings.TrimPrefix(a, "v"))
	bv, berr := semver.Make(strings.TrimPrefix(b, "v"))
	if aerr == nil && berr == nil {
		return av.LT(bv)
	}
	return a < b
}
