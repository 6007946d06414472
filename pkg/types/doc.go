/*
Package types provides the core interfaces and data structures shared across
the repository, pull, and sysroot layers.

# Architecture overview

	┌────────────────────────────────────────────┐
	│         Sysroot / Deployment Manager        │
	│              (internal/sysroot)             │
	└────────────────────────────────────────────┘
	                      │
	┌────────────────────────────────────────────┐
	│               Pull Engine                   │
	│               (internal/pull)                │
	└────────────────────────────────────────────┘
	          │        │        │        │
	┌─────────┴───┐ ┌──┴──┐ ┌───┴───┐ ┌──┴──────┐
	│ ObjectStore │ │Cache│ │ Refs  │ │Metrics  │
	│             │ │     │ │       │ │         │
	└─────────────┘ └─────┘ └───────┘ └─────────┘

ObjectStore abstracts the on-disk content-addressed store (archive, bare,
bare-user, bare-user-only). Cache gives the pull engine and the checkout
path a byte-range cache over object content. MetricsCollector and
HealthChecker feed Prometheus and the status API. ConfigManager exposes
live configuration to every layer above it.

All interfaces here accept context.Context on blocking operations, return
explicit errors (normally *errors.OSTreeError from pkg/errors), and are
safe for concurrent use unless documented otherwise.
*/
package types
