package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"storyforge/internal/services"
)

// GCSConfig configures the Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	// CDNURL defaults to https://storage.googleapis.com/<bucket>.
	CDNURL string
}

// GCS uploads objects with the Cloud Storage JSON API.
type GCS struct {
	svc    *gcs.Service
	bucket string
	cdn    string
}

// NewGCS dials Cloud Storage. Extra options are appended after the
// credentials option.
func NewGCS(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*GCS, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage.bucket is required for the gcs backend")
	}
	var all []option.ClientOption
	if creds := strings.TrimSpace(cfg.CredentialsFile); creds != "" {
		all = append(all, option.WithCredentialsFile(creds))
	}
	all = append(all, option.WithScopes(gcs.DevstorageReadWriteScope))
	all = append(all, opts...)
	svc, err := gcs.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	cdn := strings.TrimSpace(cfg.CDNURL)
	if cdn == "" {
		cdn = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{svc: svc, bucket: bucket, cdn: cdn}, nil
}

// Upload streams localPath to gs://bucket/key.
func (g *GCS) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	object := &gcs.Object{
		Name:         key,
		ContentType:  contentType,
		CacheControl: cacheControl(contentType),
	}
	_, err = g.svc.Objects.Insert(g.bucket, object).
		Name(key).
		Media(f, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(key, err)
	}
	return PublicURL(g.cdn, key), nil
}

// Playlists change when a segment is regenerated; media files never do.
func cacheControl(contentType string) string {
	if contentType == ContentTypePlaylist {
		return "public, max-age=60"
	}
	return "public, max-age=31536000, immutable"
}

func classify(key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "upload", "gcs", key, err)
		case http.StatusNotFound:
			return services.Wrap(services.ErrConfiguration, "upload", "gcs", "bucket not found", err)
		}
	}
	return services.Wrap(services.ErrTransient, "upload", "gcs", key, err)
}
