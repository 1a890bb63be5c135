package storage

import (
	"context"
)

// Uploaded is the result of a successful upload. The core never reads the
// object back; it stores URL on the element for the UI to resolve.
type Uploaded struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
}

// Client is the single object-store contract the core depends on. Object
// keys are untrusted input; disk-backed implementations must resolve them
// against a configured root and reject traversal.
type Client interface {
	Upload(ctx context.Context, objectKey string, data []byte, mime string, overwrite bool) (Uploaded, error)
	Delete(ctx context.Context, objectKey string) error
}
