// Package avatars stores user profile pictures in S3-compatible object storage.
package avatars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 << 20

var (
	ErrTooLarge    = errors.New("avatar must be at most 5MB")
	ErrUnsupported = errors.New("avatar must be a JPEG, PNG, GIF or WebP image")
	ErrDisabled    = errors.New("avatar storage is not configured")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the subset of an S3 client the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	Remove(ctx context.Context, key string) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base URL objects are served from, e.g. https://cdn.example.com/avatars.
	PublicURL string
}

// Uploader validates images and writes them under avatars/<userID>/.
type Uploader struct {
	store     ObjectStore
	publicURL string
	now       func() time.Time
}

func NewUploader(store ObjectStore, publicURL string) *Uploader {
	return &Uploader{store: store, publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}
}

// Upload sniffs the content type of r, stores it and returns the new avatar. The
// previous object, if any, is removed afterwards; a failed removal only leaks storage.
func (u *Uploader) Upload(ctx context.Context, userID string, r io.Reader, size int64, previous *model.Avatar) (model.Avatar, error) {
	if u == nil || u.store == nil {
		return model.Avatar{}, ErrDisabled
	}
	if size > MaxSize {
		return model.Avatar{}, ErrTooLarge
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return model.Avatar{}, err
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := extensions[contentType]
	if !ok {
		return model.Avatar{}, ErrUnsupported
	}

	key := path.Join("avatars", userID, fmt.Sprintf("%d-%s%s", u.now().Unix(), uuid.NewString()[:8], ext))
	body := io.MultiReader(strings.NewReader(string(head)), r)
	if err := u.store.Put(ctx, key, contentType, io.LimitReader(body, MaxSize+1), size); err != nil {
		return model.Avatar{}, fmt.Errorf("store avatar: %w", err)
	}
	if previous != nil && previous.Key != "" && previous.Key != key {
		_ = u.store.Remove(ctx, previous.Key)
	}
	return model.Avatar{Key: key, URL: u.publicURL + "/" + key}, nil
}

// Minio is the MinIO-backed ObjectStore.
type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinio(ctx context.Context, cfg Config) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	return err
}

func (m *Minio) Remove(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

// ReadyCheck reports whether the bucket is reachable.
func (m *Minio) ReadyCheck(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

// DefaultPublicURL builds a path-style object URL base for cfg.
func DefaultPublicURL(cfg Config) string {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}
