// Package mediatest holds in-memory stand-ins for the object store, the media
// tools and the worker pool.
package mediatest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/video-gateway/internal/platform/gcp"
)

type memObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updated     time.Time
}

// MemoryStore implements gcp.ObjectStore in memory. Signed URLs are
// deterministic fakes of the form memory://<bucket>/<key>?action=...
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]*memObject

	// UploadErr, when set, fails every Upload before anything is stored.
	UploadErr error
	uploads   int
}

var _ gcp.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bucket: "test-bucket", objects: map[string]*memObject{}}
}

func (m *MemoryStore) Bucket() string { return m.bucket }

// Put seeds an object.
func (m *MemoryStore) Put(key string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &memObject{data: append([]byte(nil), data...), contentType: contentType, updated: time.Now().UTC()}
}

// Get returns a copy of an object's bytes.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Uploads counts Upload calls that reached the store.
func (m *MemoryStore) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Attrs(_ context.Context, key string) (*gcp.ObjectAttrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcp.ErrObjectNotFound, key)
	}
	return m.attrs(key, o), nil
}

func (m *MemoryStore) attrs(key string, o *memObject) *gcp.ObjectAttrs {
	return &gcp.ObjectAttrs{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		Updated:     o.updated,
		ETag:        strconv.Itoa(len(o.data)),
		Metadata:    o.metadata,
	}
}

func (m *MemoryStore) SignedURL(_ context.Context, key string, opts gcp.SignedURLOptions) (string, error) {
	action := opts.Action
	if action == "" {
		action = gcp.SignedActionRead
	}
	q := url.Values{}
	q.Set("action", string(action))
	q.Set("ttl", opts.TTL.String())
	if opts.ContentType != "" {
		q.Set("contentType", opts.ContentType)
	}
	if opts.MaxBytes > 0 {
		q.Set("maxBytes", strconv.FormatInt(opts.MaxBytes, 10))
	}
	return fmt.Sprintf("memory://%s/%s?%s", m.bucket, key, q.Encode()), nil
}

func (m *MemoryStore) OpenReader(_ context.Context, key string, rng gcp.ReadRange) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcp.ErrObjectNotFound, key)
	}
	data := o.data
	start := rng.Offset
	if start > int64(len(data)) {
		start = int64(len(data))
	}
	end := int64(len(data))
	if rng.Length > 0 && start+rng.Length < end {
		end = start + rng.Length
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data[start:end]...))), nil
}

type memWriter struct {
	buf   bytes.Buffer
	store *MemoryStore
	key   string
	opts  gcp.WriteOptions
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	ct := w.opts.ContentType
	if ct == "" {
		ct = gcp.ContentTypeForKey(w.key)
	}
	w.store.objects[w.key] = &memObject{
		data:        w.buf.Bytes(),
		contentType: ct,
		metadata:    w.opts.Metadata,
		updated:     time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) NewWriter(_ context.Context, key string, opts gcp.WriteOptions) (io.WriteCloser, error) {
	return &memWriter{store: m, key: key, opts: opts}, nil
}

// Upload commits only after the whole reader is consumed, so a failing reader
// leaves nothing behind.
func (m *MemoryStore) Upload(ctx context.Context, key string, r io.Reader, opts gcp.WriteOptions) (int64, error) {
	if m.UploadErr != nil {
		return 0, m.UploadErr
	}
	w, _ := m.NewWriter(ctx, key, opts)
	n, err := io.Copy(w, r)
	if err != nil {
		return n, err
	}
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	return n, w.Close()
}

func (m *MemoryStore) List(_ context.Context, prefix string, limit int, pageToken string) (*gcp.ObjectPage, error) {
	keys := m.Keys()
	m.mu.Lock()
	defer m.mu.Unlock()
	page := &gcp.ObjectPage{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) || (pageToken != "" && k <= pageToken) {
			continue
		}
		if limit > 0 && len(page.Objects) == limit {
			page.NextPageToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, *m.attrs(k, m.objects[k]))
	}
	return page, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
