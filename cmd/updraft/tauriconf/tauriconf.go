package tauriconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	glog "github.com/magicsong/color-glog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
	"github.com/updraft-sh/updraft/cmd/updraft/utils"
)

var (
	ErrNotFound    = errors.New("config not found")
	ErrMalformed   = errors.New("config malformed")
	ErrWriteFailed = errors.New("config write failed")
)

// Field paths for the v1 descriptor layout first, v2 as fallback.
var (
	endpointPaths   = []string{"tauri.updater.endpoints", "plugins.updater.endpoints"}
	identifierPaths = []string{"tauri.bundle.identifier", "identifier"}
	versionPaths    = []string{"package.version", "version"}
)

// Conf holds the raw bytes of a tauri.conf.json. Edits go through
// sjson so every byte outside the touched fields survives verbatim,
// including key order and indentation.
type Conf struct {
	path string
	raw  []byte
}

func Load(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrMalformed, path)
	}
	return &Conf{path: path, raw: data}, nil
}

func (c *Conf) Raw() []byte  { return c.raw }
func (c *Conf) Path() string { return c.path }

// Version reads the application version the descriptor declares.
func (c *Conf) Version() string {
	for _, p := range versionPaths {
		if v := gjson.GetBytes(c.raw, p); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// Identifier reads the bundle identifier, empty when absent.
func (c *Conf) Identifier() string {
	for _, p := range identifierPaths {
		if v := gjson.GetBytes(c.raw, p); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// Endpoints lists the updater endpoint URLs currently in the
// descriptor.
func (c *Conf) Endpoints() []string {
	_, res := c.endpoints()
	var urls []string
	for _, ep := range res.Array() {
		urls = append(urls, ep.String())
	}
	return urls
}

func (c *Conf) endpoints() (string, gjson.Result) {
	for _, p := range endpointPaths {
		if v := gjson.GetBytes(c.raw, p); v.Exists() && v.IsArray() {
			return p, v
		}
	}
	return "", gjson.Result{}
}

// SetChannel rewrites the updater endpoints for the channel by
// substituting the {channel} placeholder, and suffixes the bundle
// identifier on non-default channels so side-by-side installs do not
// collide. The updater's own {{target}} and {{current_version}}
// placeholders are left for the client to fill in. Returns whether
// anything changed; patching again with the same channel is a no-op.
func (c *Conf) SetChannel(channel string) (bool, error) {
	fieldPath, eps := c.endpoints()
	if fieldPath == "" {
		return false, fmt.Errorf("%w: no updater endpoints field in %s", ErrMalformed, c.path)
	}
	changed := false
	for i, ep := range eps.Array() {
		rewritten := strings.ReplaceAll(ep.String(), constants.ChannelPlaceholder, channel)
		if rewritten == ep.String() {
			continue
		}
		out, err := sjson.SetBytes(c.raw, fieldPath+"."+strconv.Itoa(i), rewritten)
		if err != nil {
			return changed, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		c.raw = out
		changed = true
		glog.V(3).Infof("endpoint %d set to %s", i, rewritten)
	}
	idChanged, err := c.suffixIdentifier(channel)
	if err != nil {
		return changed, err
	}
	return changed || idChanged, nil
}

func (c *Conf) suffixIdentifier(channel string) (bool, error) {
	if channel == constants.DefaultChannel {
		return false, nil
	}
	suffix := "." + channel
	for _, p := range identifierPaths {
		v := gjson.GetBytes(c.raw, p)
		if !v.Exists() {
			continue
		}
		if strings.HasSuffix(v.String(), suffix) {
			return false, nil
		}
		out, err := sjson.SetBytes(c.raw, p, v.String()+suffix)
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		c.raw = out
		glog.V(3).Infof("bundle identifier set to %s", v.String()+suffix)
		return true, nil
	}
	// No identifier field. Not every descriptor carries one.
	return false, nil
}

// ReferencesChannel reports whether any updater endpoint mentions the
// channel's path segment, which is how upload sanity-checks that the
// shipped build will actually poll the manifest it publishes.
func (c *Conf) ReferencesChannel(channel string) bool {
	for _, ep := range c.Endpoints() {
		if strings.Contains(ep, "/"+channel+"/") {
			return true
		}
	}
	return false
}

// Save writes the document back through a temp-file rename so no
// partial descriptor is ever left at path.
func (c *Conf) Save() error {
	if err := utils.WriteFileAtomic(c.path, c.raw, 0644); err != nil {
		return fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}
	glog.V(2).Infof("wrote %s", c.path)
	return nil
}
