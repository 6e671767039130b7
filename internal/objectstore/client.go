// Package objectstore provides the object store adapter: parsing opaque
// object URIs, retryable download/upload against an S3-compatible backend,
// and a verified-before-return guarantee so that every URI the store
// adapter persists resolves to a readable object.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/automl-platform/orchestrator/internal/apperrors"
)

// Config configures the backing S3-compatible endpoint, the bucket
// allow-list enforced on every parsed URI, and the per-operation retry
// budget. DownloadRetries/UploadRetries of zero fall back to
// defaultMaxAttempts.
type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	Buckets         []string // allow-listed bucket names
	DownloadRetries int
	UploadRetries   int
}

// Client is the object store adapter used by every agent.
type Client struct {
	mc              *minio.Client
	buckets         []string
	downloadRetries int
	uploadRetries   int
}

// NewClient constructs a Client against an S3-compatible endpoint.
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct object store client: %w", err)
	}
	return &Client{
		mc:              mc,
		buckets:         cfg.Buckets,
		downloadRetries: cfg.DownloadRetries,
		uploadRetries:   cfg.UploadRetries,
	}, nil
}

func (c *Client) resolve(uri string) (URI, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return URI{}, apperrors.Wrap(apperrors.KindInputInvalid, "parse object uri", err)
	}
	if !AllowedBucket(parsed.Bucket, c.buckets) {
		return URI{}, apperrors.New(apperrors.KindInputInvalid, fmt.Sprintf("bucket %q is not in the allow-list", parsed.Bucket))
	}
	return parsed, nil
}

// Download streams the object at uri to destPath, retrying transient
// failures with exponential backoff. Partial files are always removed on
// failure.
func (c *Client) Download(ctx context.Context, uri, destPath string) error {
	parsed, err := c.resolve(uri)
	if err != nil {
		return err
	}

	err = withRetry(ctx, c.downloadRetries, func() error {
		obj, getErr := c.mc.GetObject(ctx, parsed.Bucket, parsed.Path, minio.GetObjectOptions{})
		if getErr != nil {
			return getErr
		}
		defer obj.Close()

		f, createErr := os.Create(destPath)
		if createErr != nil {
			return createErr
		}
		_, copyErr := io.Copy(f, obj)
		closeErr := f.Close()
		if copyErr != nil {
			_ = os.Remove(destPath)
			return copyErr
		}
		if closeErr != nil {
			_ = os.Remove(destPath)
			return closeErr
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(destPath)
		return err
	}

	info, statErr := os.Stat(destPath)
	if statErr != nil || info.Size() == 0 {
		_ = os.Remove(destPath)
		return apperrors.New(apperrors.KindDependency, "downloaded archive is empty")
	}
	return nil
}

// Upload streams srcPath to uri, then issues a head and verifies size and
// existence before returning — write-then-verify keeps the guarantee that
// any URI persisted to the database is truthful.
func (c *Client) Upload(ctx context.Context, srcPath, uri string) error {
	parsed, err := c.resolve(uri)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(srcPath)
	if statErr != nil {
		return apperrors.Wrap(apperrors.KindPermanent, "stat upload source", statErr)
	}

	err = withRetry(ctx, c.uploadRetries, func() error {
		f, openErr := os.Open(srcPath)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, putErr := c.mc.PutObject(ctx, parsed.Bucket, parsed.Path, f, info.Size(), minio.PutObjectOptions{})
		return putErr
	})
	if err != nil {
		return err
	}

	return withRetry(ctx, c.uploadRetries, func() error {
		stat, headErr := c.mc.StatObject(ctx, parsed.Bucket, parsed.Path, minio.StatObjectOptions{})
		if headErr != nil {
			return headErr
		}
		if stat.Size != info.Size() {
			return apperrors.New(apperrors.KindDependency, "uploaded object size mismatch")
		}
		return nil
	})
}

// OpenRead returns a stream for gateway pass-through (bundle downloads).
// Callers must Close the returned reader.
func (c *Client) OpenRead(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	parsed, err := c.resolve(uri)
	if err != nil {
		return nil, 0, err
	}
	stat, err := c.mc.StatObject(ctx, parsed.Bucket, parsed.Path, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindNotFound, "object not found", err)
	}
	obj, err := c.mc.GetObject(ctx, parsed.Bucket, parsed.Path, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindDependency, "open object for read", err)
	}
	return obj, stat.Size, nil
}

// Head reports whether the object at uri exists and its size. Upload
// runs the same StatObject check inline to verify a write actually landed.
func (c *Client) Head(ctx context.Context, uri string) (size int64, exists bool, err error) {
	parsed, resolveErr := c.resolve(uri)
	if resolveErr != nil {
		return 0, false, resolveErr
	}
	stat, statErr := c.mc.StatObject(ctx, parsed.Bucket, parsed.Path, minio.StatObjectOptions{})
	if statErr != nil {
		return 0, false, nil
	}
	return stat.Size, true, nil
}
