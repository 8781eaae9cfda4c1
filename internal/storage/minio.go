package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig encapsulates the connection info for an S3-compatible account.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// Transport overrides the HTTP transport; NewTransport is used when nil.
	Transport http.RoundTripper
}

// MinioStore implements ObjectStore on top of minio-go. Containers are buckets.
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinioStore builds a MinioStore. The endpoint may carry an http:// or
// https:// scheme, which then takes precedence over UseSSL.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &MinioStore{
		client: client,
		region: region,
	}, nil
}

// Endpoint returns the account's service URL.
func (s *MinioStore) Endpoint() *url.URL {
	return s.client.EndpointURL()
}

// ListContainers lists the account's buckets.
func (s *MinioStore) ListContainers(ctx context.Context) ([]string, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapMinioError(err)
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

// ListObjects streams a flat listing of container under prefix.
func (s *MinioStore) ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		// Cancelling stops minio's paging goroutine when the caller breaks early.
		listCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		objects := s.client.ListObjects(listCtx, container, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		})
		for object := range objects {
			if object.Err != nil {
				yield(ObjectInfo{}, mapMinioError(object.Err))
				return
			}
			info := ObjectInfo{
				Name:         object.Key,
				Size:         object.Size,
				LastModified: object.LastModified,
			}
			if !yield(info, nil) {
				return
			}
		}
		// minio closes the channel without an error when ctx is done first.
		if err := ctx.Err(); err != nil {
			yield(ObjectInfo{}, err)
		}
	}
}

// CreateContainerIfNotExists creates the bucket unless it already exists.
func (s *MinioStore) CreateContainerIfNotExists(ctx context.Context, container string) (bool, error) {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return false, mapMinioError(err)
	}
	if exists {
		return false, nil
	}

	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{Region: s.region}); err != nil {
		// Another writer won the race.
		if isBucketExistsCode(minio.ToErrorResponse(err).Code) {
			return false, nil
		}
		return false, mapMinioError(err)
	}
	return true, nil
}

// PutObject writes data as the full content of the object, replacing it.
func (s *MinioStore) PutObject(ctx context.Context, container, name string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, container, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return mapMinioError(err)
	}
	return nil
}

// GetObject reads the whole object into memory.
func (s *MinioStore) GetObject(ctx context.Context, container, name string, opts GetOptions) ([]byte, error) {
	object, err := s.client.GetObject(ctx, container, name, minio.GetObjectOptions{
		Checksum: opts.VerifyChecksum,
	})
	if err != nil {
		return nil, mapMinioError(err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, mapMinioError(err)
	}
	return data, nil
}

// DeleteObjectIfExists removes the object; missing objects and buckets are ignored.
func (s *MinioStore) DeleteObjectIfExists(ctx context.Context, container, name string) error {
	err := s.client.RemoveObject(ctx, container, name, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	if err = mapMinioError(err); errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ObjectURL builds the path-style URL of an object.
func (s *MinioStore) ObjectURL(container, name string) string {
	return objectURL(s.Endpoint(), container, name)
}

var _ ObjectStore = (*MinioStore)(nil)

// splitEndpoint strips a URL scheme from endpoint and reports whether TLS
// should be used.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case hasPrefixFold(endpoint, "https://"):
		return strings.TrimSuffix(endpoint[len("https://"):], "/"), true
	case hasPrefixFold(endpoint, "http://"):
		return strings.TrimSuffix(endpoint[len("http://"):], "/"), false
	default:
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "//"), "/"), useSSL
	}
}

func mapMinioError(err error) error {
	switch code := minio.ToErrorResponse(err).Code; code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	default:
		return err
	}
}

func isBucketExistsCode(code string) bool {
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}
