package memstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"local.dev/socialfeed-client/internal/backend"
)

// ObjectStore keeps uploads in memory, optionally mirrored to a local
// uploads directory so offline posts render from disk.
type ObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	dir     string // "" keeps uploads memory-only
}

func NewObjectStore(dir string) *ObjectStore {
	return &ObjectStore{objects: map[string][]byte{}, dir: dir}
}

func (o *ObjectStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	o.mu.Lock()
	o.objects[key] = append([]byte(nil), data...)
	o.mu.Unlock()

	if o.dir != "" {
		_ = os.MkdirAll(o.dir, 0o755)
		if err := os.WriteFile(filepath.Join(o.dir, key), data, 0o644); err != nil {
			return &backend.StorageError{Op: "upload", Key: key, Err: err}
		}
	}
	return nil
}

func (o *ObjectStore) PublicURL(key string) string {
	if o.dir != "" {
		return "file://" + filepath.Join(o.dir, key)
	}
	return "mem://uploads/" + key
}

// Object returns the stored bytes, for tests.
func (o *ObjectStore) Object(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	return b, ok
}
