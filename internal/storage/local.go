package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// LocalClient stores objects under a configured root directory and serves
// them back through the HTTP file route. Keys are resolved relative to the
// root; anything escaping it is rejected.
type LocalClient struct {
	log     *logger.Logger
	root    string
	baseURL string
}

func NewLocalClient(log *logger.Logger, root, baseURL string) (*LocalClient, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("missing storage root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalClient{
		log:     log.With("component", "LocalStorage"),
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (c *LocalClient) Upload(ctx context.Context, objectKey string, data []byte, mime string, overwrite bool) (Uploaded, error) {
	path, err := c.resolve(objectKey)
	if err != nil {
		return Uploaded{}, err
	}
	if !overwrite {
		if _, statErr := os.Stat(path); statErr == nil {
			return Uploaded{ObjectKey: objectKey, URL: c.url(objectKey)}, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Uploaded{}, apperrors.Persistence(fmt.Errorf("create object dir: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Uploaded{}, apperrors.Persistence(fmt.Errorf("write object %q: %w", objectKey, err))
	}
	return Uploaded{ObjectKey: objectKey, URL: c.url(objectKey)}, nil
}

func (c *LocalClient) Delete(ctx context.Context, objectKey string) error {
	path, err := c.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.Persistence(fmt.Errorf("delete object %q: %w", objectKey, err))
	}
	return nil
}

// resolve maps an untrusted key onto the root, rejecting absolute paths
// and traversal.
func (c *LocalClient) resolve(objectKey string) (string, error) {
	key := strings.TrimSpace(objectKey)
	if key == "" {
		return "", apperrors.Validationf("empty object key")
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") {
		return "", apperrors.Validationf("absolute object key %q", objectKey)
	}
	path := filepath.Join(c.root, filepath.FromSlash(key))
	clean := filepath.Clean(path)
	if clean != c.root && !strings.HasPrefix(clean, c.root+string(filepath.Separator)) {
		return "", apperrors.Validationf("object key %q escapes the storage root", objectKey)
	}
	if clean == c.root {
		return "", apperrors.Validationf("object key %q resolves to the storage root", objectKey)
	}
	return clean, nil
}

func (c *LocalClient) url(objectKey string) string {
	if c.baseURL == "" {
		return "/storage/" + objectKey
	}
	return c.baseURL + "/storage/" + objectKey
}
