// Package pull implements the pull engine: fetching refs and their
// commit closures from a remote repository into a local one.
//
// A pull for one ref moves through Resolving, Planning, Fetching,
// Verifying, Writing and finally Done (or a terminal Failed), with
// Fetching and Verifying interleaved since verification only needs a
// commit object and its detached signature, not the whole closure.
// Resolve locates the commit a ref currently names (via the remote's
// summary document or an overridden commit id); Plan walks the parent
// chain and, per commit, uses a static delta instead of the per-object
// closure whenever one is advertised (sizes are not compared); Fetch runs a
// bounded-concurrency pool of object/delta-part downloads, consulting
// any configured local cache repos before reaching the network; Verify
// checks signatures and ref/collection bindings with pending-commit
// semantics, staging the commit before the ref is moved; Write applies
// deltas and finalises refs only once a commit's full closure is on
// disk.
package pull
