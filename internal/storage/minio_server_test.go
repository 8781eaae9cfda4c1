package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeModTime = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

// fakeS3 is a path-style S3 endpoint with just enough of the API for
// MinioStore. Request bodies are not decoded, since minio-go streams signed
// chunks over plain HTTP.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte

	// staleHead makes HEAD report every bucket as missing, as when another
	// writer creates it between the existence check and the create.
	staleHead bool
	pageSize  int
	// status forces an error response on every request when set.
	status int
	code   string

	creates      int
	checksumMode string
}

func newFakeS3(t *testing.T) (*fakeS3, *MinioStore) {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	store, err := NewMinioStore(MinioConfig{Endpoint: srv.URL, AccessKey: "key", SecretKey: "secret"})
	require.NoError(t, err)
	return f, store
}

func (f *fakeS3) seed(bucket string, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = true
	for _, key := range keys {
		f.objects[bucket+"/"+key] = []byte("content of " + key)
	}
}

func (f *fakeS3) fail(status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.code = status, code
}

func (f *fakeS3) setStaleHead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleHead = true
}

func (f *fakeS3) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeS3) hasObject(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok
}

func (f *fakeS3) lastChecksumMode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checksumMode
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		writeS3Error(w, f.status, f.code)
		return
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if f.buckets[bucket] && !f.staleHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case key == "" && r.Method == http.MethodPut:
		f.creates++
		if f.buckets[bucket] {
			writeS3Error(w, http.StatusConflict, "BucketAlreadyOwnedByYou")
			return
		}
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case !f.buckets[bucket]:
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r, bucket)
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = data
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		f.checksumMode = r.Header.Get("x-amz-checksum-mode")
		data, ok := f.objects[bucket+"/"+key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", fakeModTime.Format(http.TimeFormat))
		w.Header().Set("ETag", `"0123456789abcdef"`)
		_, _ = w.Write(data)
	case r.Method == http.MethodDelete:
		delete(f.objects, bucket+"/"+key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request, bucket string) {
	query := r.URL.Query()
	prefix := query.Get("prefix")

	var keys []string
	for k := range f.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start, _ := strconv.Atoi(query.Get("continuation-token"))
	end := len(keys)
	truncated := false
	if f.pageSize > 0 && start+f.pageSize < len(keys) {
		end = start + f.pageSize
		truncated = true
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys>", bucket, prefix, end-start)
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%d</NextContinuationToken>", end)
	}
	for _, key := range keys[start:end] {
		fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>%s</LastModified><ETag>"0123456789abcdef"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			key, fakeModTime.Format("2006-01-02T15:04:05.000Z"), len(f.objects[bucket+"/"+key]))
	}
	b.WriteString(`</ListBucketResult>`)

	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, b.String())
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>req</RequestId></Error>`, code, code)
}

func TestMinioCreateContainerIfNotExists(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing bucket", func(t *testing.T) {
		f, store := newFakeS3(t)
		created, err := store.CreateContainerIfNotExists(ctx, "inputs")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 1, f.createCount())
	})

	t.Run("existing bucket is not recreated", func(t *testing.T) {
		f, store := newFakeS3(t)
		f.seed("inputs")
		created, err := store.CreateContainerIfNotExists(ctx, "inputs")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Zero(t, f.createCount())
	})

	t.Run("bucket created concurrently counts as existing", func(t *testing.T) {
		f, store := newFakeS3(t)
		f.seed("inputs")
		f.setStaleHead()
		created, err := store.CreateContainerIfNotExists(ctx, "inputs")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 1, f.createCount())
	})

	t.Run("access denied", func(t *testing.T) {
		f, store := newFakeS3(t)
		f.fail(http.StatusForbidden, "AccessDenied")
		_, err := store.CreateContainerIfNotExists(ctx, "inputs")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestGatewayUploadWhenAnotherReplicaCreatedContainer(t *testing.T) {
	f, store := newFakeS3(t)
	f.setStaleHead()
	ctx := context.Background()

	first, err := NewGateway(store, nil)
	require.NoError(t, err)
	second, err := NewGateway(store, nil)
	require.NoError(t, err)

	_, err = first.UploadText(ctx, "a", "inputs", "a.txt")
	require.NoError(t, err)
	uri, err := second.UploadText(ctx, "b", "inputs", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, store.ObjectURL("inputs", "b.txt"), uri)
	assert.Equal(t, 2, f.createCount())

	seen, err := second.Registry().Contains(ctx, "inputs")
	require.NoError(t, err)
	assert.True(t, seen)

	_, err = second.UploadText(ctx, "c", "inputs", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, f.createCount())
	assert.True(t, f.hasObject("inputs", "c.txt"))
}

func TestMinioGetObject(t *testing.T) {
	f, store := newFakeS3(t)
	f.seed("inputs", "wf.json")
	ctx := context.Background()

	data, err := store.GetObject(ctx, "inputs", "wf.json", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "content of wf.json", string(data))
	assert.Empty(t, f.lastChecksumMode())

	_, err = store.GetObject(ctx, "inputs", "wf.json", GetOptions{VerifyChecksum: true})
	require.NoError(t, err)
	assert.Equal(t, "ENABLED", f.lastChecksumMode())

	_, err = store.GetObject(ctx, "inputs", "missing.json", GetOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetObject(ctx, "nowhere", "wf.json", GetOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMinioDeleteObjectIfExists(t *testing.T) {
	f, store := newFakeS3(t)
	f.seed("inputs", "wf.json")
	ctx := context.Background()

	require.NoError(t, store.DeleteObjectIfExists(ctx, "inputs", "wf.json"))
	assert.False(t, f.hasObject("inputs", "wf.json"))

	require.NoError(t, store.DeleteObjectIfExists(ctx, "inputs", "wf.json"))
	require.NoError(t, store.DeleteObjectIfExists(ctx, "nowhere", "wf.json"))

	f.fail(http.StatusForbidden, "AccessDenied")
	assert.ErrorIs(t, store.DeleteObjectIfExists(ctx, "inputs", "wf.json"), ErrUnauthorized)
}

func TestMinioListObjects(t *testing.T) {
	f, store := newFakeS3(t)
	f.pageSize = 2
	f.seed("workflows", "new/a.json", "new/b.json", "new/c.json", "failed/d.json")
	ctx := context.Background()

	t.Run("follows continuation pages", func(t *testing.T) {
		var names []string
		for object, err := range store.ListObjects(ctx, "workflows", "new") {
			require.NoError(t, err)
			assert.Equal(t, fakeModTime, object.LastModified.UTC())
			names = append(names, object.Name)
		}
		assert.Equal(t, []string{"new/a.json", "new/b.json", "new/c.json"}, names)
	})

	t.Run("stops when the caller breaks", func(t *testing.T) {
		count := 0
		for _, err := range store.ListObjects(ctx, "workflows", "new") {
			require.NoError(t, err)
			count++
			break
		}
		assert.Equal(t, 1, count)
	})

	t.Run("cancelled context ends with an error", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		var last error
		for _, err := range store.ListObjects(cancelled, "workflows", "new") {
			last = err
		}
		assert.ErrorIs(t, last, context.Canceled)
	})

	t.Run("missing bucket", func(t *testing.T) {
		var last error
		for _, err := range store.ListObjects(ctx, "nowhere", "") {
			last = err
		}
		assert.ErrorIs(t, last, ErrNotFound)
	})
}
