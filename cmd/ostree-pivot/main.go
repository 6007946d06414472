// Command ostree-pivot runs in initramfs to assemble and move the
// selected deployment into /. It is normally invoked with no arguments;
// the flags below exist for testing the sequencing logic against an
// alternate sysroot without a real initramfs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ostreego/ostree/internal/pivot"
)

func main() {
	sysroot := flag.String("sysroot", "/sysroot", "path at which the sysroot is mounted")
	stateroot := flag.String("stateroot", "", "stateroot name of the deployment to pivot into (overrides the value parsed from the kernel command line, if set)")
	cmdlineOverride := flag.String("ostree-arg", "", "override for the ostree= kernel argument, for testing outside initramfs")
	flag.Parse()

	ostreeArg := *cmdlineOverride
	if ostreeArg == "" {
		var err error
		ostreeArg, err = pivot.ReadOstreeArg()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ostree-pivot:", err)
			os.Exit(1)
		}
	}

	opts := pivot.Options{
		Sysroot:          *sysroot,
		Stateroot:        *stateroot,
		CmdlineOstreeArg: ostreeArg,
	}

	if err := pivot.Run(pivot.NewMounter(), opts); err != nil {
		fmt.Fprintln(os.Stderr, "ostree-pivot:", err)
		os.Exit(1)
	}
}
