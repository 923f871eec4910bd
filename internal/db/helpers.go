// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

// Package-level helpers delegating to the store installed by InitDB.

// AddDeploy appends one deploy history row.
func AddDeploy(rec *DeployRecord) error {
	if store == nil {
		return ErrNotInitialized
	}
	return store.AddDeploy(rec)
}

// RecentDeploys returns up to limit history rows, newest first.
func RecentDeploys(limit int) ([]DeployRecord, error) {
	if store == nil {
		return nil, ErrNotInitialized
	}
	return store.RecentDeploys(limit)
}

// LatestSuccessfulDeploy returns the newest successful deploy, or nil.
func LatestSuccessfulDeploy() (*DeployRecord, error) {
	if store == nil {
		return nil, ErrNotInitialized
	}
	return store.LatestSuccessfulDeploy()
}

// KnownHostKey returns the pinned public key for host, or "".
func KnownHostKey(host string) (string, error) {
	if store == nil {
		return "", ErrNotInitialized
	}
	return store.KnownHostKey(host)
}

// SetKnownHostKey pins (or replaces) the public key for host.
func SetKnownHostKey(host, publicKey string) error {
	if store == nil {
		return ErrNotInitialized
	}
	return store.SetKnownHostKey(host, publicKey)
}
