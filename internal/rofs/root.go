package rofs

import (
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ostreego/ostree/pkg/errors"
)

// Options configures a Mount.
type Options struct {
	// Debug enables verbose libfuse request logging.
	Debug bool
	// AllowOther lets other users access the mount (requires
	// user_allow_other in /etc/fuse.conf on most distributions).
	AllowOther bool
}

// Mount mounts a rofiles-fuse-style passthrough filesystem at
// mountPoint, backed by sourceDir. The returned server must have
// Unmount called on it (or Wait called and the mount unmounted
// externally) when the caller is done using mountPoint.
func Mount(sourceDir, mountPoint string, opts Options) (*fuse.Server, error) {
	root := &Node{path: "", source: sourceDir}

	mountOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      opts.Debug,
			AllowOther: opts.AllowOther,
			FsName:     "rofiles-ostree",
			Name:       "rofs",
		},
	}

	server, err := fs.Mount(mountPoint, root, mountOpts)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "mounting rofiles passthrough filesystem").WithCause(err).
			WithDetail("mountpoint", mountPoint)
	}
	return server, nil
}
