package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storyforge/internal/fileutil"
	"storyforge/internal/services"
)

// Local copies assets into a directory served at BaseURL.
type Local struct {
	root    string
	baseURL string
}

// NewLocal returns a backend rooted at dir.
func NewLocal(dir, baseURL string) (*Local, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage.local_dir is required for the local backend")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("storage.cdn_url is required")
	}
	return &Local{root: dir, baseURL: baseURL}, nil
}

// Root returns the directory assets are copied into.
func (l *Local) Root() string { return l.root }

// Upload copies localPath to root/key and verifies the copy.
func (l *Local) Upload(ctx context.Context, localPath, key, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest := filepath.Join(l.root, filepath.FromSlash(key))
	if !strings.HasPrefix(dest, filepath.Clean(l.root)+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, "upload", "local", "key escapes root: "+key, nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	if err := fileutil.CopyFileVerified(localPath, dest); err != nil {
		return "", services.Wrap(services.ErrTransient, "upload", "local copy", key, err)
	}
	return PublicURL(l.baseURL, key), nil
}
