package objectstore

import (
	"path/filepath"

	"github.com/ostreego/ostree/pkg/types"
)

// objectPath returns the on-disk path for an object of the given kind
// and checksum, bucketed by the first two hex characters so no single
// directory grows unbounded.
func objectPath(root string, kind types.ObjectKind, compressed bool, checksumHex string) string {
	return filepath.Join(root, "objects", checksumHex[:2], checksumHex[2:]+kind.Extension(compressed))
}

func objectBucketDir(root, checksumHex string) string {
	return filepath.Join(root, "objects", checksumHex[:2])
}

func tmpDir(root string) string {
	return filepath.Join(root, "tmp")
}

func configPath(root string) string {
	return filepath.Join(root, "config")
}

func stateMarkerPath(root, checksumHex string) string {
	return filepath.Join(root, "state", checksumHex+".commitpartial")
}
