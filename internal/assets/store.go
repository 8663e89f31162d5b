// Package assets keeps binary artifacts in S3-compatible object storage:
// unit letterhead logos and an archive of issued certificates.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"barangay/api/internal/certificate"
	"barangay/api/internal/domain"
	"barangay/api/internal/export"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

const maxLogoBytes = 2 << 20

// objects is the part of the object store the asset store needs.
type objects interface {
	get(ctx context.Context, key string, limit int64) ([]byte, string, error)
	put(ctx context.Context, key string, data []byte, contentType string) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	objects objects
	bucket  string
	now     func() time.Time
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
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
	return newStore(&minioObjects{client: client, bucket: cfg.Bucket}, cfg.Bucket), nil
}

func newStore(o objects, bucket string) *Store {
	return &Store{objects: o, bucket: bucket, now: time.Now}
}

// FetchLogo loads the unit's letterhead logo. A unit without a logo key
// yields nil and no error.
func (s *Store) FetchLogo(ctx context.Context, unit domain.Unit) (*certificate.Image, error) {
	key := strings.TrimSpace(unit.LogoObjectKey)
	if key == "" {
		return nil, nil
	}
	data, contentType, err := s.objects.get(ctx, key, maxLogoBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch logo %s: %w", key, err)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(key)
	}
	return &certificate.Image{ObjectKey: key, ContentType: contentType, Data: data}, nil
}

// ArchiveKey is certificates/<unit>/<year>/<request>/<stamp>-<filename>.
func ArchiveKey(draft certificate.Draft, filename string, at time.Time) string {
	return path.Join(
		"certificates",
		draft.UnitID,
		at.UTC().Format("2006"),
		draft.RequestID,
		at.UTC().Format("20060102T150405Z")+"-"+filename,
	)
}

// ArchiveCertificate stores a rendered certificate and returns its key.
// Every issuance and reprint gets its own object.
func (s *Store) ArchiveCertificate(ctx context.Context, draft certificate.Draft, result *export.Result) (string, error) {
	key := ArchiveKey(draft, result.Filename, s.now())
	if err := s.objects.put(ctx, key, result.Data, result.MimeType); err != nil {
		return "", fmt.Errorf("archive certificate %s: %w", draft.RequestID, err)
	}
	return key, nil
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (m *minioObjects) get(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", err
	}
	if info.Size > limit {
		return nil, "", fmt.Errorf("object %s is %d bytes, limit %d", key, info.Size, limit)
	}
	data, err := io.ReadAll(io.LimitReader(obj, limit))
	if err != nil {
		return nil, "", err
	}
	return data, info.ContentType, nil
}

func (m *minioObjects) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
