package types

import (
	"context"
	"io"
	"testing"
	"time"
)

// TestInterfaces verifies that our interfaces are properly structured.
func TestInterfaces(t *testing.T) {
	var (
		_ ObjectStore       = (*mockObjectStore)(nil)
		_ Cache             = (*mockCache)(nil)
		_ MetricsCollector  = (*mockMetricsCollector)(nil)
		_ ConfigManager     = (*mockConfigManager)(nil)
		_ HealthChecker     = (*mockHealthChecker)(nil)
		_ ProgressObserver  = (*mockProgressObserver)(nil)
		_ SignatureVerifier = (*mockSignatureVerifier)(nil)
		_ ConnectionManager = (*mockConnectionManager)(nil)
		_ AccessPredictor   = (*mockAccessPredictor)(nil)
	)
}

// Mock implementations for testing interface compliance.

type mockObjectStore struct{}

func (m *mockObjectStore) Mode() RepoMode { return ModeArchive }

func (m *mockObjectStore) HasObject(ctx context.Context, kind ObjectKind, checksum string) (bool, error) {
	return false, nil
}

func (m *mockObjectStore) OpenObject(ctx context.Context, kind ObjectKind, checksum string) (io.ReadCloser, error) {
	return nil, nil
}

func (m *mockObjectStore) StatObject(ctx context.Context, kind ObjectKind, checksum string) (*ObjectInfo, error) {
	return nil, nil
}

func (m *mockObjectStore) WriteFileObject(ctx context.Context, obj *FileObject) (string, error) {
	return "", nil
}

func (m *mockObjectStore) WriteDirMeta(ctx context.Context, meta *DirMeta) (string, error) {
	return "", nil
}

func (m *mockObjectStore) WriteDirTree(ctx context.Context, tree *DirTree) (string, error) {
	return "", nil
}

func (m *mockObjectStore) WriteCommit(ctx context.Context, commit *Commit) (string, error) {
	return "", nil
}

func (m *mockObjectStore) ReadCommit(ctx context.Context, checksum string) (*Commit, error) {
	return nil, nil
}

func (m *mockObjectStore) ReadDirTree(ctx context.Context, checksum string) (*DirTree, error) {
	return nil, nil
}

func (m *mockObjectStore) ReadDirMeta(ctx context.Context, checksum string) (*DirMeta, error) {
	return nil, nil
}

func (m *mockObjectStore) IterObjects(ctx context.Context, kind ObjectKind) (<-chan ObjectInfo, error) {
	return nil, nil
}

func (m *mockObjectStore) CopyInto(ctx context.Context, dst ObjectStore, kind ObjectKind, checksum string) error {
	return nil
}

func (m *mockObjectStore) DeleteObject(ctx context.Context, kind ObjectKind, checksum string) error {
	return nil
}

func (m *mockObjectStore) Stats(ctx context.Context) (RepoStats, error) {
	return RepoStats{}, nil
}

type mockCache struct{}

func (m *mockCache) Get(checksum string, offset, size int64) []byte { return nil }

func (m *mockCache) Put(checksum string, offset int64, data []byte) {}

func (m *mockCache) Delete(checksum string) {}

func (m *mockCache) Evict(size int64) bool { return true }

func (m *mockCache) Size() int64 { return 0 }

func (m *mockCache) Stats() CacheStats { return CacheStats{} }

type mockMetricsCollector struct{}

func (m *mockMetricsCollector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
}

func (m *mockMetricsCollector) RecordCacheHit(checksum string, size int64) {}

func (m *mockMetricsCollector) RecordCacheMiss(checksum string, size int64) {}

func (m *mockMetricsCollector) RecordError(operation string, err error) {}

func (m *mockMetricsCollector) GetMetrics() map[string]interface{} { return nil }

type mockConfigManager struct{}

func (m *mockConfigManager) Get(key string) interface{} { return nil }

func (m *mockConfigManager) GetString(key string) string { return "" }

func (m *mockConfigManager) GetInt(key string) int { return 0 }

func (m *mockConfigManager) GetDuration(key string) time.Duration { return 0 }

func (m *mockConfigManager) GetBool(key string) bool { return false }

func (m *mockConfigManager) Watch(key string, callback func(interface{})) {}

func (m *mockConfigManager) Reload() error { return nil }

type mockHealthChecker struct{}

func (m *mockHealthChecker) Check(ctx context.Context) HealthStatus { return HealthStatus{} }

func (m *mockHealthChecker) RegisterCheck(name string, check func(context.Context) error) {}

func (m *mockHealthChecker) GetStatus() map[string]HealthStatus { return nil }

type mockProgressObserver struct{}

func (m *mockProgressObserver) OnProgress(p PullProgress) {}

type mockSignatureVerifier struct{}

func (m *mockSignatureVerifier) Name() string { return "mock" }

func (m *mockSignatureVerifier) Verify(ctx context.Context, commitBytes []byte, signature []byte) error {
	return nil
}

type mockConnectionManager struct{}

func (m *mockConnectionManager) GetConnection() interface{} { return nil }

func (m *mockConnectionManager) ReturnConnection(conn interface{}) {}

func (m *mockConnectionManager) HealthCheck() error { return nil }

func (m *mockConnectionManager) ScalePool(targetSize int) error { return nil }

func (m *mockConnectionManager) GetStats() ConnectionStats { return ConnectionStats{} }

type mockAccessPredictor struct{}

func (m *mockAccessPredictor) RecordAccess(checksum string, offset, size int64, timestamp time.Time) {
}

func (m *mockAccessPredictor) PredictNextAccess(checksum string) []PrefetchCandidate { return nil }

func (m *mockAccessPredictor) UpdateModel(patterns []AccessPattern) {}

func (m *mockAccessPredictor) GetConfidence(checksum string) float64 { return 0 }
