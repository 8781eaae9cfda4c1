package storage

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	lastModified time.Time
}

// MemoryStore is an in-process ObjectStore for local runs and tests.
// Container names are case-insensitive.
type MemoryStore struct {
	mu         sync.RWMutex
	endpoint   *url.URL
	containers map[string]map[string]memoryObject
	now        func() time.Time
}

// NewMemoryStore creates an empty store that reports endpoint as its URL.
func NewMemoryStore(endpoint string) (*MemoryStore, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid memory store endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("memory store endpoint %q has no host", endpoint)
	}
	return &MemoryStore{
		endpoint:   u,
		containers: make(map[string]map[string]memoryObject),
		now:        time.Now,
	}, nil
}

func (m *MemoryStore) Endpoint() *url.URL {
	u := *m.endpoint
	return &u
}

func (m *MemoryStore) ListContainers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.containers))
	for name := range m.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListObjects yields a snapshot of matching objects in lexical order.
func (m *MemoryStore) ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		m.mu.RLock()
		objects, ok := m.containers[containerKey(container)]
		var infos []ObjectInfo
		for name, obj := range objects {
			if strings.HasPrefix(name, prefix) {
				infos = append(infos, ObjectInfo{Name: name, Size: int64(len(obj.data)), LastModified: obj.lastModified})
			}
		}
		m.mu.RUnlock()

		if !ok {
			yield(ObjectInfo{}, fmt.Errorf("%w: container %s", ErrNotFound, container))
			return
		}

		sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
		for _, info := range infos {
			if err := ctx.Err(); err != nil {
				yield(ObjectInfo{}, err)
				return
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (m *MemoryStore) CreateContainerIfNotExists(ctx context.Context, container string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[containerKey(container)]; ok {
		return false, nil
	}
	m.containers[containerKey(container)] = make(map[string]memoryObject)
	return true, nil
}

func (m *MemoryStore) PutObject(ctx context.Context, container, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	objects, ok := m.containers[containerKey(container)]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrNotFound, container)
	}
	objects[name] = memoryObject{data: append([]byte(nil), data...), lastModified: m.now().UTC()}
	return nil
}

func (m *MemoryStore) GetObject(ctx context.Context, container, name string, _ GetOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.containers[containerKey(container)][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, container, name)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) DeleteObjectIfExists(ctx context.Context, container, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.containers[containerKey(container)], name)
	return nil
}

func (m *MemoryStore) ObjectURL(container, name string) string {
	return objectURL(m.endpoint, container, name)
}

var _ ObjectStore = (*MemoryStore)(nil)

func containerKey(name string) string {
	return strings.ToLower(name)
}
