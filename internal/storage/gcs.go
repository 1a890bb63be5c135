package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type GCSClient struct {
	log        *logger.Logger
	client     *gcs.Client
	bucketName string
	cdnDomain  string
}

func NewGCSClient(log *logger.Logger, bucket string) (*GCSClient, error) {
	clientLog := log.With("component", "GCSClient")
	if bucket == "" {
		return nil, fmt.Errorf("missing bucket name")
	}
	cdnDomain := os.Getenv("CDN_DOMAIN")
	saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")

	ctx := context.Background()
	var (
		client *gcs.Client
		err    error
	)
	if saPath != "" {
		client, err = gcs.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(gcs.ScopeReadWrite))
	} else {
		client, err = gcs.NewClient(ctx, option.WithScopes(gcs.ScopeReadWrite))
	}
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSClient{
		log:        clientLog,
		client:     client,
		bucketName: bucket,
		cdnDomain:  cdnDomain,
	}, nil
}

func (c *GCSClient) Upload(ctx context.Context, objectKey string, data []byte, mime string, overwrite bool) (Uploaded, error) {
	if objectKey == "" {
		return Uploaded{}, apperrors.Validationf("empty object key")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := c.client.Bucket(c.bucketName).Object(objectKey)
	if !overwrite {
		obj = obj.If(gcs.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	if mime != "" {
		w.ContentType = mime
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return Uploaded{}, apperrors.Persistence(fmt.Errorf("write object %q: %w", objectKey, err))
	}
	if err := w.Close(); err != nil {
		return Uploaded{}, apperrors.Persistence(fmt.Errorf("close object %q: %w", objectKey, err))
	}
	return Uploaded{ObjectKey: objectKey, URL: c.publicURL(objectKey)}, nil
}

func (c *GCSClient) Delete(ctx context.Context, objectKey string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.client.Bucket(c.bucketName).Object(objectKey).Delete(ctx); err != nil {
		return apperrors.Persistence(fmt.Errorf("delete object %q: %w", objectKey, err))
	}
	return nil
}

func (c *GCSClient) publicURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucketName, objectKey)
}
