// Package avatars stores profile pictures in S3-compatible object storage.
package avatars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// MaxSize is the largest accepted avatar, in bytes.
const MaxSize = 5 << 20

var (
	// ErrTooLarge is returned for uploads above MaxSize.
	ErrTooLarge = errors.New("avatar exceeds 5 MiB")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("avatar file is empty")
	// ErrNotImage is returned for non-image content types.
	ErrNotImage = errors.New("avatar must be an image")
)

// Validate checks an upload before any bytes are stored.
func Validate(contentType string, size int64) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return ErrNotImage
	}
	if size <= 0 {
		return ErrEmpty
	}
	if size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

// ObjectKey returns a fresh key "<identityID>/<xid>.<ext>" for an upload.
// The extension comes from filename, falling back to the content type.
func ObjectKey(identityID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	if ext == "" {
		ext = ".img"
	}
	return identityID + "/" + xid.New().String() + ext
}

// Config describes the object storage endpoint.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore keeps avatars in one bucket.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
	logger     *zap.Logger
}

// NewMinioStore creates a client for cfg. It does not contact the server;
// call EnsureBucket before first use.
func NewMinioStore(cfg Config, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, publicBase: base, logger: logger}, nil
}

// EnsureBucket creates the bucket with a public-read policy if missing.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("set bucket policy: %w", err)
	}
	s.logger.Info("avatar bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads an object.
func (s *MinioStore) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put avatar %q: %w", key, err)
	}
	return nil
}

// PublicURL returns the URL an object is served from.
func (s *MinioStore) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

// RemoveAll deletes every object under prefix.
func (s *MinioStore) RemoveAll(ctx context.Context, prefix string) error {
	var errs []error
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			errs = append(errs, obj.Err)
			break
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", obj.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks that the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
