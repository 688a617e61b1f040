// Package objectstore is the blob store the pipeline stages hand artifacts through.
//
// A Store is bound to one bucket at construction. Keys follow the layout in
// package partition; writes to an existing key overwrite it (last writer wins).
package objectstore

import (
	"context"
	"errors"
)

// Content types of the artifacts flightpipe writes.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeCSV     = "text/csv"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrBucketEmpty is returned when no bucket is configured.
	ErrBucketEmpty = errors.New("bucket name cannot be empty")
	// ErrUnknownBackend is returned for an unsupported OBJECT_STORE_BACKEND.
	ErrUnknownBackend = errors.New("unknown object store backend")
)

type (
	// Store reads and writes whole objects.
	Store interface {
		// Put writes body under key, replacing any existing object.
		Put(ctx context.Context, key string, body []byte, contentType string, opts ...PutOption) error
		// Get returns the object body. Missing keys return an error matching ErrNotFound.
		Get(ctx context.Context, key string) ([]byte, error)
	}

	// PutOptions carries optional object attributes.
	PutOptions struct {
		Metadata map[string]string
	}

	// PutOption configures a Put.
	PutOption func(*PutOptions)
)

// WithMetadata attaches user metadata to the object.
func WithMetadata(md map[string]string) PutOption {
	return func(o *PutOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string, len(md))
		}

		for k, v := range md {
			o.Metadata[k] = v
		}
	}
}

func applyPutOptions(opts []PutOption) PutOptions {
	var o PutOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
