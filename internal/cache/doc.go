/*
Package cache provides multi-level caching of object bodies keyed by
content checksum. objectstore.CachingStore reads file objects through
a types.Cache from this package; sysroot's Deploy wraps its store in one
when DeployOptions.Cache is set.

A repository's objects are immutable once written, which makes them
ideal cache material: a cached body for checksum c never goes stale.
The cache never participates in content identity — sha256 remains the
canonical checksum regardless of what is cached or evicted.

# Cache Architecture

	┌─────────────────────────────────────────────┐
	│      objectstore.CachingStore (deploy)      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Cache Interface                  │  ← This Package
	│         (types.Cache impl)                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Multi-Level Cache                 │
	│  ┌─────────────────────────────────────────┐  │
	│  │              L1 Cache                   │  │
	│  │             (memory, LRU)               │  │
	│  └─────────────────────────────────────────┘  │
	│                     │                       │
	│  ┌─────────────────────────────────────────┐  │
	│  │              L2 Cache                   │  │
	│  │        (persistent, on local disk)      │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Remote / objects/                │
	└─────────────────────────────────────────────┘

# Cache key

Entries are keyed by (checksum, offset, size): a checksum identifies
an object, offset/size identify a byte range within its body. Whole
small objects (dirmeta, dirtree, commit) are cached at offset 0 with
size equal to their full length.

# Eviction policies

LRU and weighted LRU (recency + frequency + inverse size) are both
available; the predictive layer (L1Config.Prefetch) additionally
tracks per-checksum access patterns. Its prefetcher has no remote
fetcher set, so it does not fetch anything ahead of use.

# Usage

	cfg := &cache.MultiLevelConfig{
		L1Config: &cache.L1Config{Enabled: true, Size: 512 * 1024 * 1024},
		L2Config: &cache.L2Config{Enabled: true, Size: 10 * 1024 * 1024 * 1024, Directory: "/var/cache/ostree"},
	}
	c, err := cache.NewMultiLevelCache(cfg)
	if err != nil {
		log.Fatal(err)
	}

	c.Put(checksum, 0, body)
	if cached := c.Get(checksum, 0, int64(len(body))); cached != nil {
		// use cached body
	}
*/
package cache
