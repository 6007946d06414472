package health

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ostreego/ostree/internal/txn"
)

// LockContentionCheck creates a health check that reports failure when
// the repository lock at repoRoot is currently held by another
// process. It acquires the lock non-blockingly and releases it
// immediately, so a healthy repo is left exactly as it found it.
func LockContentionCheck(repoRoot string) CheckFunction {
	return func(ctx context.Context) error {
		lock, err := txn.AcquireRepoLock(repoRoot)
		if err != nil {
			return fmt.Errorf("repository lock at %s is contended: %w", repoRoot, err)
		}
		return lock.Release()
	}
}

// RemoteReachabilityCheck creates a health check that dials a pull
// remote's host, defaulting to port 443 for https and 80 for http
// when the URL carries no explicit port.
func RemoteReachabilityCheck(remoteURL string) (CheckFunction, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote url %q: %w", remoteURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("remote url %q carries no host", remoteURL)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("remote url %q carries an invalid port: %w", remoteURL, err)
		}
		port = parsed
	}
	return NetworkCheck(host, port), nil
}

// RegisterRepoChecks registers the disk-space, lock-contention, and
// remote-reachability checks a repository's health monitor needs.
// The generic checks registerDefaultChecks installs at Start stay
// registered alongside them.
// remotes maps a remote's configured name to its URL.
func RegisterRepoChecks(m *Monitor, repoRoot string, minFreeGB int64, remotes map[string]string) error {
	if err := m.checker.RegisterCheck(
		"repo_disk_space",
		fmt.Sprintf("Available disk space under %s", repoRoot),
		CategoryCore,
		PriorityHigh,
		DiskSpaceCheck(repoRoot, minFreeGB),
	); err != nil {
		return err
	}

	if err := m.checker.RegisterCheck(
		"repo_lock_contention",
		fmt.Sprintf("Repository lock contention at %s", repoRoot),
		CategoryCore,
		PriorityHigh,
		LockContentionCheck(repoRoot),
	); err != nil {
		return err
	}

	for name, remoteURL := range remotes {
		check, err := RemoteReachabilityCheck(remoteURL)
		if err != nil {
			return fmt.Errorf("registering reachability check for remote %s: %w", name, err)
		}
		if err := m.checker.RegisterCheck(
			fmt.Sprintf("remote_reachable_%s", name),
			fmt.Sprintf("Reachability of remote %s (%s)", name, remoteURL),
			CategoryNetwork,
			PriorityMedium,
			check,
		); err != nil {
			return err
		}
	}
	return nil
}
