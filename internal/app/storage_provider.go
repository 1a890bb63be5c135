package app

import (
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

// resolveStorageClient picks GCS when a bucket is configured, the local
// filesystem store otherwise.
func resolveStorageClient(log *logger.Logger, cfg Config) (storage.Client, error) {
	if cfg.GCSBucket != "" {
		client, err := storage.NewGCSClient(log, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		log.Info("Element storage: gcs", "bucket", cfg.GCSBucket)
		return client, nil
	}
	client, err := storage.NewLocalClient(log, cfg.StorageRoot, cfg.PublicURL)
	if err != nil {
		return nil, err
	}
	log.Info("Element storage: local", "root", cfg.StorageRoot)
	return client, nil
}
