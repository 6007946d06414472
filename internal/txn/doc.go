// Package txn implements the repository's transaction manager: the
// single-writer lock around a sequence of object-store and ref-store
// mutations, the fsync policy that governs how aggressively those
// mutations hit disk, and the stats snapshot taken once a transaction
// commits. Only one transaction may be active per process for a given
// repository; a second concurrent attempt fails immediately rather
// than queuing, mirroring ostree's own repo_prepare_transaction.
package txn
