//go:build !linux

package health

import "fmt"

func freeDiskSpace(path string) (uint64, error) {
	return 0, fmt.Errorf("disk space check unsupported on this platform")
}
