// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package sshexec

import (
	"errors"
	"strings"
)

// IsConnectionTimeoutError reports whether the error looks like a network
// timeout while reaching the host.
func IsConnectionTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// IsConnectionRefusedError reports whether the host could not be reached at
// the network level.
func IsConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "no such host")
}

// IsAuthenticationError reports whether the SSH handshake failed because no
// offered credential was accepted.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "permission denied")
}

// Remediation returns a short, human-oriented hint for a failed connection,
// or an empty string when there is nothing useful to add.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrHostKeyUnknown):
		return "pin the host key first: mousectl trust-host"
	case errors.Is(err, ErrHostKeyMismatch):
		return "the host key changed; if this is expected, re-run: mousectl trust-host"
	case IsAuthenticationError(err):
		return "check --key, the cached passphrase, or load the key into your ssh agent"
	case IsConnectionRefusedError(err):
		return "check that the host is up and sshd is listening"
	case IsConnectionTimeoutError(err):
		return "check the network path to the host (is it asleep or off-site?)"
	default:
		return ""
	}
}
