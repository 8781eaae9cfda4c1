package storage

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/andresuchdata/triggerstore/internal/cache"
	"github.com/andresuchdata/triggerstore/internal/config"
	"github.com/rs/zerolog"
)

const (
	DriverMinio  = "minio"
	DriverMemory = "memory"

	defaultMemoryEndpoint = "http://devstoreaccount1.blob.localhost"
)

// NewObjectStore creates an ObjectStore for the configured driver.
func NewObjectStore(cfg config.StorageConfig, transport http.RoundTripper) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMinio, "s3", "":
		return NewMinioStore(MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
			Transport: transport,
		})
	case DriverMemory:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultMemoryEndpoint
		}
		if !hasHTTPScheme(endpoint) {
			endpoint = "http://" + endpoint
		}
		return NewMemoryStore(endpoint)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// NewGatewayFromConfig wires a Gateway from configuration: the object store,
// a fetcher sharing the store's transport and the container registry.
func NewGatewayFromConfig(cfg *config.Config, observer Observer, log zerolog.Logger) (*Gateway, error) {
	transport := NewTransport()

	store, err := NewObjectStore(cfg.Storage, transport)
	if err != nil {
		return nil, err
	}

	endpoint := store.Endpoint()
	registry, err := cache.NewContainerRegistry(cfg.Cache, accountNameFromHost(endpoint.Hostname()))
	if err != nil {
		return nil, fmt.Errorf("failed to create container registry: %w", err)
	}

	return NewGateway(store, NewHTTPFetcher(&http.Client{Transport: transport}),
		WithContainerRegistry(registry),
		WithObserver(observer),
		WithLogger(log),
		WithProbeTimeout(cfg.Storage.ProbeTimeout()),
		WithVerifyChecksum(cfg.Storage.VerifyDownloadChecksum),
	)
}
