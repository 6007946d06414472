package txn

import (
	"context"
	"sync"
	"time"

	"github.com/ostreego/ostree/internal/buffer"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// FsyncPolicy controls how aggressively a transaction's object writes
// are synced to disk before the transaction is allowed to commit.
type FsyncPolicy string

const (
	// FsyncAlways fsyncs every object as it is written (objectstore's
	// default per-object policy, just enforced explicitly here too).
	FsyncAlways FsyncPolicy = "always"
	// FsyncNever never fsyncs; suited to scratch/test repositories
	// where losing the object store on a crash is acceptable.
	FsyncNever FsyncPolicy = "never"
	// FsyncPerObject is the default: each object is fsynced as
	// objectstore.Repo.putObjectBytes writes it.
	FsyncPerObject FsyncPolicy = "per-object"
)

// Stats is the snapshot computed when a transaction commits.
type Stats struct {
	ObjectsWritten int
	BytesWritten   int64
	Duration       time.Duration
	CommittedAt    time.Time
}

// Manager enforces the single-active-transaction-per-repository rule
// and aggregates stats across committed transactions.
type Manager struct {
	mu     sync.Mutex
	active *Transaction
	policy FsyncPolicy

	stageConfig *buffer.ManagerConfig

	// Logger, if set, receives one line when a transaction commits and
	// one when a transaction is abandoned.
	Logger *utils.StructuredLogger

	totalCommitted int
	lastStats      Stats
}

// NewManager returns a transaction manager using policy for every
// transaction it opens. An empty policy defaults to FsyncPerObject.
func NewManager(policy FsyncPolicy) *Manager {
	if policy == "" {
		policy = FsyncPerObject
	}
	return &Manager{policy: policy}
}

// NewManagerWithStaging returns a transaction manager whose
// transactions buffer their object writes through a Stage (grouping
// many small put_object calls into fewer flushes) before the objects
// are written into the store, rather than writing each object through
// immediately. stageConfig tunes the underlying write buffer; nil uses
// its defaults.
func NewManagerWithStaging(policy FsyncPolicy, stageConfig *buffer.ManagerConfig) *Manager {
	m := NewManager(policy)
	m.stageConfig = stageConfig
	if m.stageConfig == nil {
		m.stageConfig = &buffer.ManagerConfig{}
	}
	return m
}

// Begin opens a transaction against store, failing with
// TransactionAlreadyActive if one is already open for this manager.
func (m *Manager) Begin(ctx context.Context, store types.ObjectStore) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, errors.NewError(errors.ErrCodeTransactionAlreadyActive, "a transaction is already active for this repository")
	}

	t := &Transaction{
		manager: m,
		store:   store,
		started: time.Now(),
		logger:  m.Logger,
	}

	if m.stageConfig != nil {
		stage, err := NewStage(ctx, store, m.stageConfig)
		if err != nil {
			return nil, err
		}
		t.stage = stage
	}

	m.active = t
	return t, nil
}

// Policy returns the manager's configured fsync policy.
func (m *Manager) Policy() FsyncPolicy { return m.policy }

// Stats returns the stats recorded by the most recently committed
// transaction and the total number of transactions committed so far.
func (m *Manager) Stats() (Stats, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStats, m.totalCommitted
}

func (m *Manager) finish(t *Transaction, stats Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != t {
		return errors.NewError(errors.ErrCodeNoTransaction, "transaction is not the active one for this manager")
	}
	m.active = nil
	m.totalCommitted++
	m.lastStats = stats
	return nil
}

// Transaction tracks the object writes performed since Begin, so
// Commit can report an accurate Stats snapshot. The object/ref writes
// themselves go straight through the passed-in store and ref store;
// Transaction only wraps WriteFileObject/WriteDirMeta/WriteDirTree/
// WriteCommit to count bytes, since objectstore.Repo has no notion of
// an open transaction itself (every put_object is already atomic).
type Transaction struct {
	manager *Manager
	store   types.ObjectStore
	stage   *Stage
	started time.Time
	logger  *utils.StructuredLogger

	mu             sync.Mutex
	objectsWritten int
	bytesWritten   int64
	done           bool
}

// WriteFileObject writes a file object and counts it toward the
// transaction's stats. When the owning manager was built with
// NewManagerWithStaging, the write is buffered through the
// transaction's Stage instead of hitting the store immediately.
func (t *Transaction) WriteFileObject(ctx context.Context, obj *types.FileObject) (string, error) {
	var csum string
	var err error
	if t.stage != nil {
		csum, err = t.stage.StageFileObject(ctx, obj)
	} else {
		csum, err = t.store.WriteFileObject(ctx, obj)
	}
	if err != nil {
		return "", err
	}
	t.record(int64(len(obj.Content)))
	return csum, nil
}

// WriteDirMeta writes a dirmeta object and counts it toward the
// transaction's stats, staging it the same way WriteFileObject does
// when the owning manager was built with NewManagerWithStaging.
func (t *Transaction) WriteDirMeta(ctx context.Context, meta *types.DirMeta) (string, error) {
	var csum string
	var err error
	if t.stage != nil {
		csum, err = t.stage.StageDirMeta(ctx, meta)
	} else {
		csum, err = t.store.WriteDirMeta(ctx, meta)
	}
	if err != nil {
		return "", err
	}
	t.record(0)
	return csum, nil
}

// WriteDirTree writes a dirtree object and counts it toward the
// transaction's stats. Dirtrees reference file/dirmeta checksums by
// value, so any staged writes are flushed first to guarantee those
// children already exist in the store.
func (t *Transaction) WriteDirTree(ctx context.Context, tree *types.DirTree) (string, error) {
	if t.stage != nil {
		if err := t.stage.Flush(ctx); err != nil {
			return "", err
		}
	}
	csum, err := t.store.WriteDirTree(ctx, tree)
	if err != nil {
		return "", err
	}
	t.record(0)
	return csum, nil
}

// WriteCommit writes a commit object and counts it toward the
// transaction's stats. Like WriteDirTree, it flushes any staged writes
// first so the commit's root tree/dirmeta already exist in the store.
func (t *Transaction) WriteCommit(ctx context.Context, commit *types.Commit) (string, error) {
	if t.stage != nil {
		if err := t.stage.Flush(ctx); err != nil {
			return "", err
		}
	}
	csum, err := t.store.WriteCommit(ctx, commit)
	if err != nil {
		return "", err
	}
	t.record(0)
	return csum, nil
}

func (t *Transaction) record(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objectsWritten++
	t.bytesWritten += bytes
}

// Commit finalises the transaction, releasing the manager's
// single-transaction slot and returning the stats snapshot.
func (t *Transaction) Commit(ctx context.Context) (Stats, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return Stats{}, errors.NewError(errors.ErrCodeNoTransaction, "transaction already finished")
	}
	t.done = true
	stats := Stats{
		ObjectsWritten: t.objectsWritten,
		BytesWritten:   t.bytesWritten,
		Duration:       time.Since(t.started),
		CommittedAt:    time.Now(),
	}
	t.mu.Unlock()

	if t.stage != nil {
		if err := t.stage.Flush(ctx); err != nil {
			return Stats{}, err
		}
		if err := t.stage.Close(); err != nil {
			return Stats{}, err
		}
	}

	if err := t.manager.finish(t, stats); err != nil {
		return Stats{}, err
	}
	if t.logger != nil {
		t.logger.Info("transaction committed", map[string]interface{}{
			"objects_written": stats.ObjectsWritten, "bytes_written": stats.BytesWritten, "duration": stats.Duration.String(),
		})
	}
	return stats, nil
}

// Abandon releases the manager's single-transaction slot without
// recording stats, for callers that fail partway through and want to
// let another transaction proceed. Already-written objects are not
// rolled back; the object store has no concept of undoing a put, since
// objects are immutable and content-addressed, so an abandoned
// transaction simply leaves extra unreferenced objects for a future
// prune to sweep.
func (t *Transaction) Abandon() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	t.mu.Unlock()

	if t.stage != nil {
		_ = t.stage.Close()
	}

	err := t.manager.finish(t, Stats{})
	if t.logger != nil {
		t.logger.Warn("transaction abandoned", map[string]interface{}{
			"objects_written": t.objectsWritten, "bytes_written": t.bytesWritten,
		})
	}
	return err
}

// WithTransaction runs fn inside a transaction opened against store,
// committing on success and abandoning on error or panic.
func WithTransaction(ctx context.Context, m *Manager, store types.ObjectStore, fn func(*Transaction) error) (Stats, error) {
	t, err := m.Begin(ctx, store)
	if err != nil {
		return Stats{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = t.Abandon()
			panic(r)
		}
	}()

	if err := fn(t); err != nil {
		_ = t.Abandon()
		return Stats{}, err
	}
	return t.Commit(ctx)
}
