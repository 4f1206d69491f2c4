// Package storage publishes finished segment assets and returns their public
// URLs.
//
// Keys are laid out per segment:
//
//	scenes/{sceneId}/segments/{segmentId}/source.mp4
//	scenes/{sceneId}/segments/{segmentId}/hls/master.m3u8 (+ variants)
//	scenes/{sceneId}/segments/{segmentId}/thumbnail.jpg
//
// A public URL is the configured CDN base joined with the key.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"storyforge/internal/config"
)

// Content types written with each object.
const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/mp2t"
	ContentTypeMP4      = "video/mp4"
	ContentTypeJPEG     = "image/jpeg"
)

// Backend stores one file under key and returns its public URL.
type Backend interface {
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
}

// New selects a backend from config.
func New(ctx context.Context, cfg config.Storage) (Backend, error) {
	switch cfg.Backend {
	case config.StorageLocal, "":
		return NewLocal(cfg.LocalDir, cfg.CDNURL)
	case config.StorageGCS:
		return NewGCS(ctx, GCSConfig{Bucket: cfg.Bucket, CredentialsFile: cfg.CredentialsFile, CDNURL: cfg.CDNURL})
	default:
		return nil, fmt.Errorf("storage backend %q is not supported", cfg.Backend)
	}
}

// SegmentPrefix is the key prefix for every asset of a segment.
func SegmentPrefix(sceneID, segmentID string) string {
	return path.Join("scenes", sceneID, "segments", segmentID)
}

// PublicURL joins base and key with exactly one slash.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// ContentType picks the object content type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return ContentTypePlaylist
	case ".ts":
		return ContentTypeSegment
	case ".mp4":
		return ContentTypeMP4
	case ".jpg", ".jpeg":
		return ContentTypeJPEG
	default:
		return "application/octet-stream"
	}
}

// SegmentAssets are the local files produced for one segment.
type SegmentAssets struct {
	Source    string
	Thumbnail string
	// HLSDir holds the master playlist; HLSFiles lists every file under it.
	HLSDir   string
	HLSFiles []string
}

// SegmentURLs are the published locations.
type SegmentURLs struct {
	VideoURL     string
	HLSURL       string
	ThumbnailURL string
	Objects      int
}

// Publisher uploads segment assets concurrently.
type Publisher struct {
	Backend     Backend
	Concurrency int
}

// UploadSegment uploads every asset and returns the source, master playlist and
// thumbnail URLs. The first failed upload cancels the rest.
func (p Publisher) UploadSegment(ctx context.Context, sceneID, segmentID string, assets SegmentAssets) (SegmentURLs, error) {
	prefix := SegmentPrefix(sceneID, segmentID)
	type item struct {
		local, key string
	}
	items := make([]item, 0, len(assets.HLSFiles)+2)
	if assets.Source != "" {
		items = append(items, item{assets.Source, path.Join(prefix, "source.mp4")})
	}
	if assets.Thumbnail != "" {
		items = append(items, item{assets.Thumbnail, path.Join(prefix, "thumbnail.jpg")})
	}
	for _, file := range assets.HLSFiles {
		rel, err := filepath.Rel(assets.HLSDir, file)
		if err != nil || strings.HasPrefix(rel, "..") {
			return SegmentURLs{}, fmt.Errorf("hls file %s is outside %s", file, assets.HLSDir)
		}
		items = append(items, item{file, path.Join(prefix, "hls", filepath.ToSlash(rel))})
	}

	urls := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			url, err := p.Backend.Upload(gctx, it.local, it.key, ContentType(it.key))
			if err != nil {
				return fmt.Errorf("upload %s: %w", it.key, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SegmentURLs{}, err
	}

	out := SegmentURLs{Objects: len(items)}
	master := path.Join(prefix, "hls", "master.m3u8")
	for i, it := range items {
		switch {
		case it.key == path.Join(prefix, "source.mp4"):
			out.VideoURL = urls[i]
		case it.key == path.Join(prefix, "thumbnail.jpg"):
			out.ThumbnailURL = urls[i]
		case it.key == master:
			out.HLSURL = urls[i]
		}
	}
	return out, nil
}
