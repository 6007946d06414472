package config

import (
	"context"
	"fmt"
	"os"

	"github.com/ostreego/ostree/internal/cache"
	"github.com/ostreego/ostree/internal/circuit"
	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/internal/refs"
	"github.com/ostreego/ostree/internal/sign"
	s3storage "github.com/ostreego/ostree/internal/storage/s3"
	"github.com/ostreego/ostree/internal/sysroot"
	"github.com/ostreego/ostree/internal/txn"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/retry"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// Components holds the live objects Build constructs from a
// Configuration: a loaded config file on its own is just data, this is
// what a daemon or command actually reaches for.
type Components struct {
	Logger   *utils.StructuredLogger
	Repo     *objectstore.Repo
	Txn      *txn.Manager
	Cache    types.Cache
	Retryer  *retry.Retryer
	Breakers *circuit.Manager
	Verifier types.SignatureVerifier

	RefStore   *refs.Store
	Tombstones *refs.Tombstones
	Sysroot    *sysroot.Sysroot

	// Mirror is nil unless Configuration.Mirror.Enabled is set.
	Mirror *s3storage.Backend
}

// Build validates a Configuration and constructs every component its
// sections describe: the object store at repo.path (opened if it
// already exists, initialised otherwise), a transaction manager using
// repo.fsync_policy, a byte-range cache sized from the cache section,
// a retry policy and circuit breaker manager from the network section,
// a signature verifier from the signing section, the ref/tombstone
// stores and sysroot rooted at their configured paths, and, when
// mirror.enabled is set, an S3 mirror backend.
func Build(ctx context.Context, c *Configuration) (*Components, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(&c.Global)
	if err != nil {
		return nil, err
	}

	repo, err := buildRepo(&c.Repo, logger)
	if err != nil {
		return nil, err
	}

	byteCache, err := buildCache(&c.Cache)
	if err != nil {
		return nil, err
	}

	verifier, err := buildVerifier(&c.Signing)
	if err != nil {
		return nil, err
	}

	txnManager := txn.NewManager(txn.FsyncPolicy(c.Repo.FsyncPolicy))
	txnManager.Logger = logger

	refStore := refs.NewStore(repo.Root())
	refStore.Logger = logger
	tombstones := refs.NewTombstones(repo.Root())
	tombstones.Logger = logger

	sys := sysroot.New(c.Sysroot.Path)
	sys.Logger = logger

	comps := &Components{
		Logger:     logger,
		Repo:       repo,
		Txn:        txnManager,
		Cache:      byteCache,
		Retryer:    retry.New(buildRetryConfig(&c.Network.Retry)),
		Breakers:   buildBreakerManager(&c.Network.CircuitBreaker),
		Verifier:   verifier,
		RefStore:   refStore,
		Tombstones: tombstones,
		Sysroot:    sys,
	}

	if c.Mirror.Enabled {
		mirror, err := buildMirror(ctx, &c.Mirror)
		if err != nil {
			return nil, err
		}
		comps.Mirror = mirror
	}

	return comps, nil
}

// buildLogger maps global.log_level/log_file onto a structured logger
// in the same text-vs-json and level scheme monitoring.logging selects
// for the rest of the system.
func buildLogger(g *GlobalConfig) (*utils.StructuredLogger, error) {
	level, err := parseLogLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}

	logCfg := utils.DefaultStructuredLoggerConfig()
	logCfg.Level = level
	if g.LogFile != "" {
		f, err := os.OpenFile(g.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInternalError, "opening log file").WithCause(err).WithDetail("path", g.LogFile)
		}
		logCfg.Output = f
	}

	return utils.NewStructuredLogger(logCfg)
}

func parseLogLevel(level string) (utils.LogLevel, error) {
	switch level {
	case "DEBUG":
		return utils.DEBUG, nil
	case "INFO":
		return utils.INFO, nil
	case "WARN":
		return utils.WARN, nil
	case "ERROR":
		return utils.ERROR, nil
	default:
		return 0, errors.NewError(errors.ErrCodeInvalidConfig, "unknown global.log_level").WithDetail("log_level", level)
	}
}

// buildRepo opens the repository at repo.path, initialising it in
// repo.mode on first use, and applies repo.fsync_policy to it.
func buildRepo(rc *RepoConfig, logger *utils.StructuredLogger) (*objectstore.Repo, error) {
	opts := []objectstore.Option{objectstore.WithFsyncPolicy(rc.FsyncPolicy), objectstore.WithLogger(logger)}

	repo, err := objectstore.OpenRepo(rc.Path, opts...)
	if err == nil {
		return repo, nil
	}

	mode := types.RepoMode(rc.Mode)
	repo, initErr := objectstore.InitRepo(rc.Path, mode, "", opts...)
	if initErr != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "opening or initialising repo.path").
			WithCause(err).WithDetail("path", rc.Path)
	}
	return repo, nil
}

// buildCache sizes a byte-range cache from the cache section;
// eviction_policy "weighted_lru" gets a size-aware cache, anything
// else falls back to plain LRU-by-entry-count.
func buildCache(cc *CacheConfig) (types.Cache, error) {
	lruCfg := &cache.CacheConfig{
		MaxEntries: cc.MaxEntries,
		TTL:        cc.TTL,
	}
	if cc.MaxBytes != "" {
		maxBytes, err := utils.ParseBytes(cc.MaxBytes)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "parsing cache.max_bytes").WithCause(err).WithDetail("max_bytes", cc.MaxBytes)
		}
		lruCfg.MaxSize = maxBytes
	}

	if cc.EvictionPolicy == "weighted_lru" {
		return cache.NewWeightedLRUCache(lruCfg), nil
	}
	return cache.NewLRUCache(lruCfg), nil
}

func buildRetryConfig(rc *RetryConfig) retry.Config {
	cfg := retry.DefaultConfig()
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		cfg.InitialDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		cfg.MaxDelay = rc.MaxDelay
	}
	return cfg
}

// buildBreakerManager returns nil when circuit breaking is disabled, so
// callers can treat a nil *circuit.Manager as "don't guard remote calls".
func buildBreakerManager(cb *CircuitBreakerConfig) *circuit.Manager {
	if !cb.Enabled {
		return nil
	}
	return circuit.NewManager(circuit.Config{
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cb.FailureThreshold)
		},
	})
}

// buildVerifier composes the configured signature verifiers.
// require_signature=false with nothing configured returns nil, meaning
// "no verification required"; require_signature=true with nothing
// configured still returns a verifier (one that always reports
// NoSignature), so a caller can't silently skip verification by
// misconfiguring both key sources.
func buildVerifier(sc *SigningConfig) (types.SignatureVerifier, error) {
	var verifiers []types.SignatureVerifier

	if len(sc.Ed25519PubKeys) > 0 {
		keys, err := sign.ParseEd25519PublicKeys(sc.Ed25519PubKeys)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, sign.NewEd25519Verifier(keys...))
	}

	if sc.GPGKeyringPath != "" {
		v, err := sign.LoadGPGVerifier(sc.GPGKeyringPath)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}

	if len(verifiers) == 0 && !sc.RequireSignature {
		return nil, nil
	}

	// A required verifier with no keys configured still returns a
	// MultiVerifier; with zero members it reports NoSignature for every
	// commit instead of silently accepting unsigned ones.
	return sign.NewMultiVerifier(verifiers...), nil
}

func buildMirror(ctx context.Context, mc *MirrorConfig) (*s3storage.Backend, error) {
	cfg := s3storage.NewDefaultConfig()
	cfg.Region = mc.Region
	cfg.StorageTier = mc.StorageTier
	return s3storage.NewBackend(ctx, mc.Bucket, cfg)
}
