package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andresuchdata/triggerstore/internal/cache"
	"github.com/andresuchdata/triggerstore/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// WorkflowsContainerName holds workflow definition files, partitioned by
	// state prefix.
	WorkflowsContainerName = "workflows"

	readmeObjectName  = "readme.txt"
	textContentType   = "text/plain; charset=utf-8"
	defaultProbeLimit = 10 * time.Second
)

// Gateway mediates every interaction between the trigger service and one
// storage account. It is safe for concurrent use.
type Gateway struct {
	store      ObjectStore
	fetcher    HTTPFetcher
	containers cache.ContainerRegistry
	observer   Observer
	log        zerolog.Logger

	accountName      string
	accountAuthority string

	probeTimeout   time.Duration
	verifyChecksum bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithContainerRegistry replaces the per-gateway in-memory set of provisioned
// containers.
func WithContainerRegistry(r cache.ContainerRegistry) Option {
	return func(g *Gateway) {
		if r != nil {
			g.containers = r
		}
	}
}

// WithObserver reports operation timings and failures to o.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithLogger sets the logger; the gateway is silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

// WithProbeTimeout bounds IsAvailable. Zero disables the bound.
func WithProbeTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.probeTimeout = d
	}
}

// WithVerifyChecksum turns on store-side checksum validation for DownloadBlob.
func WithVerifyChecksum(enabled bool) Option {
	return func(g *Gateway) {
		g.verifyChecksum = enabled
	}
}

// NewGateway binds the store and fetcher and derives the account identity
// from the store endpoint. No I/O is performed. A nil fetcher gets an
// HTTPClientFetcher on NewTransport.
func NewGateway(store ObjectStore, fetcher HTTPFetcher, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("object store must be provided")
	}
	endpoint := store.Endpoint()
	if endpoint == nil || endpoint.Hostname() == "" {
		return nil, fmt.Errorf("object store endpoint has no host")
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}

	g := &Gateway{
		store:            store,
		fetcher:          fetcher,
		containers:       cache.NewMemoryContainerRegistry(),
		observer:         nopObserver{},
		log:              zerolog.Nop(),
		accountName:      accountNameFromHost(endpoint.Hostname()),
		accountAuthority: endpoint.Host,
		probeTimeout:     defaultProbeLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With().Str("account", g.accountName).Logger()
	return g, nil
}

// AccountName is the endpoint host label before the first dot.
func (g *Gateway) AccountName() string {
	return g.accountName
}

// AccountAuthority is the endpoint's host[:port].
func (g *Gateway) AccountAuthority() string {
	return g.accountAuthority
}

// Account returns both identity fields.
func (g *Gateway) Account() domain.Account {
	return domain.Account{Name: g.accountName, Authority: g.accountAuthority}
}

// Registry returns the set of provisioned containers.
func (g *Gateway) Registry() cache.ContainerRegistry {
	return g.containers
}

// IsAvailable reports whether the account can be reached. It never fails;
// use CheckAvailability to inspect why a probe failed.
func (g *Gateway) IsAvailable(ctx context.Context) bool {
	return g.CheckAvailability(ctx).Available
}

// WorkflowsByState lazily lists the workflow files stored under the state's
// prefix in the workflows container. Placeholder objects named after the
// prefix, the prefix's readme.txt and entries without a modification time
// are skipped. Every range over the sequence issues a fresh listing. When ctx
// is cancelled the sequence ends with an error wrapping ctx.Err().
func (g *Gateway) WorkflowsByState(ctx context.Context, state domain.WorkflowState) iter.Seq2[domain.TriggerFile, error] {
	prefix := state.Prefix()
	readme := prefix + "/" + readmeObjectName

	return func(yield func(domain.TriggerFile, error) bool) {
		start := time.Now()
		var listErr error
		defer func() { g.observer.RecordOperation("list", time.Since(start), listErr) }()

		for object, err := range g.store.ListObjects(ctx, WorkflowsContainerName, prefix) {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				listErr = g.wrap(ctx, "list", WorkflowsContainerName, prefix, err)
				yield(domain.TriggerFile{}, listErr)
				return
			}
			if isListingMarker(object, prefix, readme) {
				continue
			}

			file := domain.TriggerFile{
				URI:           g.store.ObjectURL(WorkflowsContainerName, object.Name),
				ContainerName: WorkflowsContainerName,
				Name:          object.Name,
				LastModified:  object.LastModified,
			}
			if !yield(file, nil) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			listErr = g.wrap(ctx, "list", WorkflowsContainerName, prefix, err)
			yield(domain.TriggerFile{}, listErr)
		}
	}
}

func isListingMarker(object ObjectInfo, prefix, readme string) bool {
	return strings.EqualFold(object.Name, prefix) ||
		strings.EqualFold(object.Name, readme) ||
		object.LastModified.IsZero()
}

// UploadText writes content as UTF-8 to container/objectName, overwriting any
// existing object, and returns the object's absolute URL. The container is
// created on first use by this gateway.
func (g *Gateway) UploadText(ctx context.Context, content, container, objectName string) (uri string, err error) {
	start := time.Now()
	defer func() { g.observer.RecordUpload(time.Since(start), uint64(len(content)), err) }()

	if err := g.ensureContainer(ctx, container); err != nil {
		return "", g.wrap(ctx, "upload", container, objectName, err)
	}
	if err := g.store.PutObject(ctx, container, objectName, []byte(content), textContentType); err != nil {
		return "", g.wrap(ctx, "upload", container, objectName, err)
	}
	return g.store.ObjectURL(container, objectName), nil
}

// ensureContainer creates container at most once per registry.
func (g *Gateway) ensureContainer(ctx context.Context, container string) error {
	key := strings.ToLower(container)

	seen, err := g.containers.Contains(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("container", container).Msg("container registry lookup failed")
	}
	if seen {
		return nil
	}

	created, err := g.store.CreateContainerIfNotExists(ctx, container)
	if err != nil {
		return err
	}
	if err := g.containers.Add(ctx, key); err != nil {
		g.log.Warn().Err(err).Str("container", container).Msg("container registry update failed")
	}

	g.log.Debug().Str("container", container).Bool("created", created).Msg("container provisioned")
	return nil
}

// DownloadBlob downloads an object of this account addressed by URL,
// "/account/container/object" or "account/container/object".
func (g *Gateway) DownloadBlob(ctx context.Context, reference string) (data []byte, err error) {
	start := time.Now()
	defer func() { g.observer.RecordOperation("download_blob", time.Since(start), err) }()

	normalized, kind := NormalizeReference(reference, g.accountName, g.accountAuthority)
	container, object, err := ParseObjectURL(normalized)
	if err != nil {
		return nil, &OpError{Op: "download_blob", Err: err}
	}
	g.log.Debug().
		Str("reference", reference).
		Stringer("kind", kind).
		Str("container", container).
		Str("object", object).
		Msg("resolved blob reference")

	data, err = g.store.GetObject(ctx, container, object, GetOptions{VerifyChecksum: g.verifyChecksum})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, g.wrap(ctx, "download_blob", container, object, err)
	}
	return data, nil
}

// DownloadHTTP fetches url with the gateway's HTTP fetcher.
func (g *Gateway) DownloadHTTP(ctx context.Context, url string) (data []byte, err error) {
	start := time.Now()
	defer func() { g.observer.RecordOperation("download_http", time.Since(start), err) }()

	data, err = g.fetcher.Fetch(ctx, url)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, g.wrap(ctx, "download_http", "", "", err)
	}
	return data, nil
}

// DownloadText downloads container/objectName and decodes it as UTF-8.
func (g *Gateway) DownloadText(ctx context.Context, container, objectName string) (text string, err error) {
	start := time.Now()
	defer func() { g.observer.RecordOperation("download_text", time.Since(start), err) }()

	data, err := g.store.GetObject(ctx, container, objectName, GetOptions{})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return "", g.wrap(ctx, "download_text", container, objectName, err)
	}
	if !utf8.Valid(data) {
		return "", &OpError{Op: "download_text", Container: container, Object: objectName, Err: ErrInvalidText}
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

// DeleteIfExists deletes container/objectName. A missing object is not an error.
func (g *Gateway) DeleteIfExists(ctx context.Context, container, objectName string) (err error) {
	start := time.Now()
	defer func() { g.observer.RecordOperation("delete", time.Since(start), err) }()

	if err := g.store.DeleteObjectIfExists(ctx, container, objectName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return g.wrap(ctx, "delete", container, objectName, err)
	}
	return nil
}

// wrap attaches the operation and, when ctx is done, the cancellation cause so
// errors.Is(err, context.Canceled) holds regardless of how the store reported it.
func (g *Gateway) wrap(ctx context.Context, op, container, object string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &OpError{Op: op, Container: container, Object: object, Err: err}
}

// CollectWorkflows drains WorkflowsByState into a slice.
func (g *Gateway) CollectWorkflows(ctx context.Context, state domain.WorkflowState) ([]domain.TriggerFile, error) {
	var files []domain.TriggerFile
	for file, err := range g.WorkflowsByState(ctx, state) {
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}
