// Package pivot implements the early-boot helper that assembles and
// moves a selected deployment into / (spec.md §4.9). It reads
// ostree=<path> from /proc/cmdline, resolves the deployment symlink,
// binds the deployment and its stateroot's /var over themselves, and
// installs the new root via pivot_root or a bind-then-MS_MOVE
// sequence depending on whether the real root is already / or is
// mounted at /sysroot. /usr is bind-mounted read-only unless
// .usr-ovl-work is present, in which case an overlayfs is used instead.
package pivot
