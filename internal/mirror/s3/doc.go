// Package s3 publishes and restores a repository's static file tree
// (objects/, refs/, summary, deltas/) to and from an S3 bucket.
//
// Repositories are designed to be "published by copying": the on-disk
// layout under a repo root is already the wire format a static HTTP
// server or object store can serve directly. This package performs
// that copy against S3, reusing internal/storage/s3's client and
// CargoShip-accelerated transport rather than talking to the AWS SDK
// directly.
package s3
