package storage

import (
	"context"
	"iter"
	"net/url"
	"time"
)

// ObjectInfo represents metadata for a listed object.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// GetOptions controls how an object body is fetched.
type GetOptions struct {
	// VerifyChecksum asks the store to validate the payload against the
	// checksum it holds for the object.
	VerifyChecksum bool
}

// ObjectStore captures the operations the gateway needs from a blob storage
// account. Containers map to buckets on S3-compatible services.
type ObjectStore interface {
	// Endpoint is the account's service URL.
	Endpoint() *url.URL
	ListContainers(ctx context.Context) ([]string, error)
	// ListObjects streams objects in container whose names start with prefix.
	// Pages are fetched as the sequence is consumed; breaking out of the loop
	// releases the listing.
	ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error]
	// CreateContainerIfNotExists reports whether the container was created by
	// this call. An existing container is not an error.
	CreateContainerIfNotExists(ctx context.Context, container string) (bool, error)
	PutObject(ctx context.Context, container, name string, data []byte, contentType string) error
	// GetObject returns ErrNotFound when the object or container is missing.
	GetObject(ctx context.Context, container, name string, opts GetOptions) ([]byte, error)
	// DeleteObjectIfExists treats a missing object as success.
	DeleteObjectIfExists(ctx context.Context, container, name string) error
	// ObjectURL builds the absolute URL of an object.
	ObjectURL(container, name string) string
}

// HTTPFetcher downloads bytes from an arbitrary URL.
type HTTPFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// objectURL builds a path-style object URL under endpoint.
func objectURL(endpoint *url.URL, container, name string) string {
	u := url.URL{
		Scheme: endpoint.Scheme,
		Host:   endpoint.Host,
		Path:   "/" + container + "/" + name,
	}
	return u.String()
}
