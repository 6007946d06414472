package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// ComputeChecksum returns the SHA-256 checksum of a canonical object
// encoding. This is the sole identity function used across the store;
// no other hash ever substitutes for it as an object's name.
func ComputeChecksum(encoded []byte) types.Checksum {
	return sha256.Sum256(encoded)
}

// ChecksumString renders a checksum as 64 lowercase hex characters.
func ChecksumString(c types.Checksum) string {
	return hex.EncodeToString(c[:])
}

// ParseChecksum parses 64 lowercase hex characters into a Checksum,
// rejecting anything else as InvalidChecksum.
func ParseChecksum(s string) (types.Checksum, error) {
	var out types.Checksum
	if len(s) != 64 {
		return out, errors.NewError(errors.ErrCodeInvalidChecksum, "checksum must be 64 hex characters").
			WithDetail("value", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.NewError(errors.ErrCodeInvalidChecksum, "checksum is not valid hex").
			WithDetail("value", s).WithCause(err)
	}
	copy(out[:], b)
	return out, nil
}

func unixToTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
