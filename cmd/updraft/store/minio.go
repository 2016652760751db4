package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cenkalti/backoff/v4"
	glog "github.com/magicsong/color-glog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
)

// Client talks to an S3-compatible store through minio-go. Transient
// failures are retried with exponential backoff inside each call;
// not-found, conflict and permanent failures surface immediately.
type Client struct {
	mc       *minio.Client
	cfg      Config
	attempts uint64
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("store client for %s: %w", cfg.Endpoint, err)
	}
	return &Client{mc: mc, cfg: cfg, attempts: constants.StoreAttempts}, nil
}

func (c *Client) Get(ctx context.Context, key string) (*Object, error) {
	var obj *Object
	err := c.retry(ctx, "get", key, func() error {
		reader, err := c.mc.GetObject(ctx, c.cfg.Bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer reader.Close()
		stat, err := reader.Stat()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		obj = &Object{Data: data, ETag: stat.ETag}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return c.retry(ctx, "put", key, func() error {
		opts := minio.PutObjectOptions{ContentType: contentType}
		_, err := c.mc.PutObject(ctx, c.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), opts)
		return err
	})
}

func (c *Client) PutIfMatch(ctx context.Context, key string, data []byte, contentType, etag string) error {
	return c.retry(ctx, "put-if-match", key, func() error {
		opts := minio.PutObjectOptions{ContentType: contentType}
		opts.SetMatchETag(etag)
		_, err := c.mc.PutObject(ctx, c.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), opts)
		return err
	})
}

func (c *Client) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error {
	return c.retry(ctx, "put-if-absent", key, func() error {
		opts := minio.PutObjectOptions{ContentType: contentType}
		opts.SetMatchETagExcept("*")
		_, err := c.mc.PutObject(ctx, c.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), opts)
		return err
	})
}

func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.PublicURL, "/"), key)
}

func (c *Client) retry(ctx context.Context, op, key string, fn func() error) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.attempts-1)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		classified := classify(op, key, err)
		var serr *Error
		if errors.As(classified, &serr) && serr.Transient {
			glog.V(3).Infof("retrying %s %s: %s", op, key, err)
			return classified
		}
		return backoff.Permanent(classified)
	}, backoff.WithContext(bo, ctx))
}

// classify maps a minio error onto what callers branch on: the
// not-found and conflict sentinels, then transient vs permanent.
func classify(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	case "PreconditionFailed", "ConditionalRequestConflict":
		return fmt.Errorf("%s %s: %w", op, key, ErrConflict)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
		return &Error{Op: op, Key: key, Transient: false, Err: err}
	case "SlowDown", "RequestTimeout", "InternalError":
		return &Error{Op: op, Key: key, Transient: true, Err: err}
	}
	if resp.StatusCode >= 500 {
		return &Error{Op: op, Key: key, Transient: true, Err: err}
	}
	if resp.Code == "" {
		// Not an S3 error response at all: the request never
		// completed (DNS, reset, timeout). Worth retrying.
		return &Error{Op: op, Key: key, Transient: true, Err: err}
	}
	return &Error{Op: op, Key: key, Transient: false, Err: err}
}
