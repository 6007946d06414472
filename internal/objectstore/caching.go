package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// CachingStore wraps an ObjectStore with a read-through byte cache for
// file object bodies. Objects are immutable once written, so a cached
// body for a given checksum never goes stale; this is purely a hot-path
// accelerator for repeated checkouts of common files (e.g. base-image
// content shared across many deployments) and is safe to omit.
//
// cache is keyed by checksum, offset, and size (internal/cache's
// native key shape), so CachingStore tracks each checksum's known body
// length itself to issue matching Get/Put calls for "whole object"
// reads.
type CachingStore struct {
	types.ObjectStore
	cache types.Cache

	mu    sync.RWMutex
	sizes map[string]int64
}

// NewCachingStore wraps store with cache for KindFile object reads.
func NewCachingStore(store types.ObjectStore, cache types.Cache) *CachingStore {
	return &CachingStore{ObjectStore: store, cache: cache, sizes: make(map[string]int64)}
}

func (c *CachingStore) knownSize(checksum string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	size, ok := c.sizes[checksum]
	return size, ok
}

func (c *CachingStore) rememberSize(checksum string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizes[checksum] = size
}

// OpenObject serves KindFile reads from the cache when the body was
// seen before, otherwise reads through and populates the cache.
// Everything else passes straight through to the wrapped store.
func (c *CachingStore) OpenObject(ctx context.Context, kind types.ObjectKind, checksum string) (io.ReadCloser, error) {
	if kind != types.KindFile {
		return c.ObjectStore.OpenObject(ctx, kind, checksum)
	}

	if size, ok := c.knownSize(checksum); ok {
		if data := c.cache.Get(checksum, 0, size); data != nil {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	rc, err := c.ObjectStore.OpenObject(ctx, kind, checksum)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	c.cache.Put(checksum, 0, data)
	c.rememberSize(checksum, int64(len(data)))
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ObjectPath forwards to the wrapped store when it exposes one, so
// wrapping a bare-mode repo in a CachingStore doesn't cost callers
// (like internal/sysroot's checkout) the hardlink fast path that
// bypasses OpenObject/the cache entirely.
func (c *CachingStore) ObjectPath(kind types.ObjectKind, checksum string) (string, error) {
	type pathStore interface {
		ObjectPath(types.ObjectKind, string) (string, error)
	}
	pather, ok := c.ObjectStore.(pathStore)
	if !ok {
		return "", errors.NewError(errors.ErrCodeInternalError, "wrapped store does not expose object paths")
	}
	return pather.ObjectPath(kind, checksum)
}
