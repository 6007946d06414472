package txn

import (
	"context"
	"sync"

	"github.com/ostreego/ostree/internal/buffer"
	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// Stage groups a transaction's object writes through buffer.Manager's
// write-buffer machinery instead of calling the backing store's
// put_object path once per object, amortizing many small writes into
// fewer flushes. Every object is content-addressed and encoded before
// it is staged, so distinct objects get distinct buffer keys and each
// one arrives as a single contiguous offset-0 write -- exactly the
// write buffer's expected shape, even though it was built for
// streaming partial writes to one key rather than whole immutable
// objects.
type Stage struct {
	manager *buffer.Manager
	store   types.ObjectStore

	mu      sync.Mutex
	pending map[string]func() error
}

// NewStage starts a buffer.Manager-backed staging area that ultimately
// writes into store. config tunes the underlying WriteBuffer (buffer
// size/count thresholds, flush interval, batch size); nil uses
// buffer.Manager's defaults.
func NewStage(ctx context.Context, store types.ObjectStore, config *buffer.ManagerConfig) (*Stage, error) {
	manager, err := buffer.NewManager(config)
	if err != nil {
		return nil, err
	}

	s := &Stage{store: store, manager: manager, pending: make(map[string]func() error)}
	manager.RegisterFlushCallback("*", s.onFlush)

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// onFlush is buffer.Manager's callback once a staged object's bytes
// have been assembled; it runs the decode-and-write the object kind
// actually needs against the backing store.
func (s *Stage) onFlush(key string, data []byte, offset int64) error {
	s.mu.Lock()
	commit, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()

	if !ok {
		return errors.NewError(errors.ErrCodeInternalError, "flush callback fired for unstaged key").WithDetail("key", key)
	}
	return commit()
}

// StageFileObject buffers a file object for a later batched write,
// keyed by its content checksum so unrelated objects never collide.
func (s *Stage) StageFileObject(ctx context.Context, obj *types.FileObject) (string, error) {
	encoded := objectstore.EncodeFileObject(obj)
	checksum := objectstore.ChecksumString(objectstore.ComputeChecksum(encoded))

	s.mu.Lock()
	s.pending[checksum] = func() error {
		_, err := s.store.WriteFileObject(context.Background(), obj)
		return err
	}
	s.mu.Unlock()

	if err := s.manager.Write(ctx, checksum, 0, encoded, false); err != nil {
		return "", err
	}
	return checksum, nil
}

// StageDirMeta buffers a dirmeta object the same way StageFileObject
// buffers a file object.
func (s *Stage) StageDirMeta(ctx context.Context, meta *types.DirMeta) (string, error) {
	encoded := objectstore.EncodeDirMeta(meta)
	checksum := objectstore.ChecksumString(objectstore.ComputeChecksum(encoded))

	s.mu.Lock()
	s.pending[checksum] = func() error {
		_, err := s.store.WriteDirMeta(context.Background(), meta)
		return err
	}
	s.mu.Unlock()

	if err := s.manager.Write(ctx, checksum, 0, encoded, false); err != nil {
		return "", err
	}
	return checksum, nil
}

// Flush forces every currently staged object to be written through to
// the store, blocking until the underlying write buffer reports them
// flushed.
func (s *Stage) Flush(ctx context.Context) error {
	return s.manager.Sync(ctx)
}

// Close flushes any remaining staged writes and stops the underlying
// buffer manager.
func (s *Stage) Close() error {
	return s.manager.Stop()
}

// Stats reports the underlying buffer manager's statistics, useful for
// a transaction's commit-time Stats snapshot.
func (s *Stage) Stats() buffer.ManagerStats {
	return s.manager.GetStats()
}
