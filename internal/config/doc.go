/*
Package config provides hierarchical configuration management for the
repository, pull engine, and sysroot, with YAML and environment variable
sources.

# Configuration precedence

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (OSTREE_*)                        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (Compiled-in defaults)              │
	└─────────────────────────────────────────────┘

# Sections

Global: logging and service ports (metrics, health, pprof).

Repo: object store path, mode (archive/bare/bare-user/bare-user-only),
fsync policy, and transaction concurrency.

Cache: byte-range cache sizing and eviction policy.

Network: pull engine timeouts, retry policy, circuit breaker, fetch
pool size, and static-delta preference.

Signing: commit signature verification requirements and trusted key
material (OpenPGP keyring path, ed25519 public keys).

Monitoring: Prometheus metrics, health checks, and structured logging.

Mirror: optional S3 backup/mirror of a repository's static file tree.

Sysroot: deployment manager paths, bootloader config format, and
default stateroot.

Usage:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/ostree/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
*/
package config
