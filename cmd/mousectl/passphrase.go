// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dogwoodfire/MouseEye/internal/i18n"
	"github.com/dogwoodfire/MouseEye/internal/state"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// loadPrivateKey reads the key file at path. An empty path means "no key
// file"; the SSH layer then falls back to the agent.
func loadPrivateKey(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	return string(b), nil
}

// passphraseFor returns the passphrase needed to decrypt key, prompting the
// user at most once per run. The passphrase is kept in the in-memory cache
// because each remote step dials a fresh connection. For an unencrypted key
// (or no key at all) it returns nil.
func passphraseFor(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	_, err := ssh.ParsePrivateKey([]byte(key))
	if err == nil {
		return nil, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		// Not an encryption problem; let the dialer surface the parse error.
		return nil, nil
	}

	if cached := state.PassphraseCache.Get(); cached != nil {
		return cached, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New(i18n.T("prompt.no_terminal"))
	}
	fmt.Fprint(os.Stderr, i18n.T("prompt.passphrase"))
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	state.PassphraseCache.Set(pass)
	return pass, nil
}
