package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
)

var (
	// ErrNotFound is returned by Get for keys that do not exist.
	ErrNotFound = errors.New("object not found")
	// ErrConflict is returned by the conditional writes when another
	// writer changed the key since it was read.
	ErrConflict = errors.New("object changed since read")
)

// Object is a fetched store object: its content plus the opaque
// version token the store reported for it.
type Object struct {
	Data []byte
	ETag string
}

// Store is the capability surface the publisher needs from an
// S3-compatible object store.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutIfMatch(ctx context.Context, key string, data []byte, contentType, etag string) error
	PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// Error wraps a store failure with enough context to decide whether
// retrying can help.
type Error struct {
	Op        string
	Key       string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("store %s %s: %s: %s", e.Op, e.Key, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config carries the env-supplied credentials and endpoints.
type Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
	Insecure  bool
}

// ConfigFromEnv assembles the store configuration from the S3_*
// environment variables, reporting every missing required name at
// once. The endpoint defaults to the region's Spaces host and the
// public URL to the bucket's vhost on it.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		AccessKey: envy.Get(constants.EnvAccessKey, ""),
		SecretKey: envy.Get(constants.EnvSecretKey, ""),
		Bucket:    envy.Get(constants.EnvBucket, ""),
		Region:    envy.Get(constants.EnvRegion, ""),
		Endpoint:  envy.Get(constants.EnvEndpoint, ""),
		PublicURL: envy.Get(constants.EnvPublicURL, ""),
		Insecure:  envy.Get(constants.EnvInsecure, "") == "true",
	}
	required := []struct {
		name  string
		value string
	}{
		{constants.EnvAccessKey, cfg.AccessKey},
		{constants.EnvSecretKey, cfg.SecretKey},
		{constants.EnvBucket, cfg.Bucket},
		{constants.EnvRegion, cfg.Region},
	}
	var missing []string
	for _, v := range required {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("%s missing from environment", strings.Join(missing, ", "))
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf(constants.SpacesEndpointFormat, cfg.Region)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf(constants.PublicURLFormat, cfg.Bucket, cfg.Endpoint)
	}
	return cfg, nil
}

// ArtifactKey builds the immutable object key for one uploaded file.
// Version and platform are part of the key, so re-uploading the same
// release overwrites identical content.
func ArtifactKey(channel, platformTag, version, filename string) string {
	return fmt.Sprintf(constants.ArtifactKeyFormat, channel, platformTag, version, filename)
}

// ManifestKey is where a channel's shared manifest lives.
func ManifestKey(channel string) string {
	return fmt.Sprintf(constants.ManifestKeyFormat, channel)
}
