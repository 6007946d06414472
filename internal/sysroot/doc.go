// Package sysroot implements the stateroot/deployment manager
// (spec.md §4.8): checking out commits from an object store into
// versioned deployment directories, the two-slot (bootversion,
// subbootversion) boot state machine and its atomic loader-symlink
// flip, the three-way /etc merge, and deployment lifecycle operations
// (deploy, stage, undeploy, cleanup).
package sysroot
