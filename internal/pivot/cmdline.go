package pivot

import (
	"os"
	"strings"

	"github.com/ostreego/ostree/pkg/errors"
)

// ParseOstreeArg extracts the ostree=<path> kernel argument from the
// contents of /proc/cmdline (or an equivalent string in tests).
func ParseOstreeArg(cmdline string) (string, error) {
	for _, field := range strings.Fields(cmdline) {
		if value, ok := strings.CutPrefix(field, "ostree="); ok {
			return value, nil
		}
	}
	return "", errors.NewError(errors.ErrCodeKargsParse, "no ostree= argument in kernel command line")
}

// ReadOstreeArg reads /proc/cmdline and extracts the ostree= argument.
func ReadOstreeArg() (string, error) {
	data, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return "", errors.NewError(errors.ErrCodeKargsParse, "reading /proc/cmdline").WithCause(err)
	}
	return ParseOstreeArg(string(data))
}
