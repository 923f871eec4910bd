// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package sshexec is the remote-command-execution channel. It dials the
// target host, runs one command string per call, and exposes SFTP for
// placing and retrieving backup files. Host keys are verified against the
// pinned key recorded by `mousectl trust-host`; unknown or changed keys
// abort the connection.
package sshexec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrHostKeyUnknown reports that no host key has been pinned for the target.
var ErrHostKeyUnknown = errors.New("unknown host key; run 'mousectl trust-host' to pin it")

// ErrHostKeyMismatch reports that the presented host key differs from the
// pinned one.
var ErrHostKeyMismatch = errors.New("host key mismatch")

// HostKeys looks up the pinned public key for a host. An empty string means
// no key has been pinned yet.
type HostKeys interface {
	KnownHostKey(host string) (string, error)
}

// Runner holds one open connection to the remote host. The pipeline opens a
// fresh Runner per remote step and closes it when the step finishes.
type Runner struct {
	client *ssh.Client
	sftp   *sftp.Client
}

// Dial opens an SSH connection to host as user. A non-empty privateKey (PEM)
// is tried first, decrypted with passphrase if one is cached; on an
// authentication failure the local SSH agent is tried as a fallback.
func Dial(host, user, privateKey string, passphrase []byte, keys HostKeys) (*Runner, error) {
	hostKeyCallback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		// The hostname passed to the callback can include the port. Strip it
		// so the lookup matches what trust-host stored.
		host, _, err := net.SplitHostPort(hostname)
		if err != nil {
			// No port present, use the original string.
			host = hostname
		}

		presentedKey := string(ssh.MarshalAuthorizedKey(key))

		knownKey, err := keys.KnownHostKey(host)
		if err != nil {
			return fmt.Errorf("failed to query pinned host keys: %w", err)
		}

		if knownKey == "" {
			return fmt.Errorf("%w (host %s)", ErrHostKeyUnknown, host)
		}

		if knownKey != presentedKey {
			return fmt.Errorf("%w for %s\nremote key presented: %sthis could be a man-in-the-middle attack", ErrHostKeyMismatch, host, presentedKey)
		}

		return nil // Host key is pinned and matches.
	}

	// Add port 22 if not specified.
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	var finalErr error

	// --- Attempt 1: Use the configured private key exclusively ---
	if privateKey != "" {
		var signer ssh.Signer
		var err error
		if len(passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(privateKey), passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(privateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}

		config := &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         10 * time.Second,
		}

		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			return &Runner{client: client}, nil
		}

		// Host key problems and network errors should fail fast; only an
		// authentication failure justifies falling back to the agent.
		if !strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("connection with configured key failed: %w", err)
		}
		finalErr = err
	}

	// --- Attempt 2: Use the SSH agent as a fallback ---
	agentClient := getSSHAgent()
	if agentClient == nil {
		if finalErr != nil { // This means the private key auth failed before this.
			return nil, fmt.Errorf("key authentication failed, and no SSH agent available for fallback: %w", finalErr)
		}
		return nil, fmt.Errorf("no authentication method available (no key configured and no ssh agent found)")
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("connection with ssh agent failed: %w", err)
	}

	return &Runner{client: client}, nil
}

// Run executes one command string on the remote host and returns its
// combined output. The call blocks until the command completes.
func (r *Runner) Run(cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	if err := session.Run(cmd); err != nil {
		return out.String(), fmt.Errorf("remote command %q failed: %w: %s", cmd, err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Stream executes one command string and copies its output to the given
// writers as it is produced. It blocks until the command exits or done is
// closed, whichever comes first. Closing done tears the session down, which
// is how an interrupted log tail is cancelled.
func (r *Runner) Stream(cmd string, stdout, stderr io.Writer, done <-chan struct{}) error {
	session, err := r.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("remote command %q failed to start: %w", cmd, err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- session.Wait() }()

	select {
	case <-done:
		// User interrupt. Closing the session ends the remote command;
		// the resulting error is not a failure of the step.
		session.Close()
		<-waitErr
		return nil
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("remote command %q failed: %w", cmd, err)
		}
		return nil
	}
}

// Hostname asks the remote host for its own name. The backup filename is
// built from this instead of trusting remote shell interpolation.
func (r *Runner) Hostname() (string, error) {
	out, err := r.Run("hostname")
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(out)
	if name == "" {
		return "", fmt.Errorf("remote host reported an empty hostname")
	}
	return name, nil
}

// sftpClient lazily opens the SFTP subsystem on the existing connection.
func (r *Runner) sftpClient() (*sftp.Client, error) {
	if r.sftp != nil {
		return r.sftp, nil
	}
	c, err := sftp.NewClient(r.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	r.sftp = c
	return c, nil
}

// Put writes data to remotePath, creating the parent directory if needed.
func (r *Runner) Put(remotePath string, data []byte) error {
	c, err := r.sftpClient()
	if err != nil {
		return err
	}

	dir := path.Dir(remotePath)
	_ = c.MkdirAll(dir) // Ignore error if it already exists.

	f, err := c.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		// Best effort to clean up the failed upload
		_ = c.Remove(remotePath)
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}
	return f.Close()
}

// Get reads and returns the content of a remote file.
func (r *Runner) Get(remotePath string) ([]byte, error) {
	c, err := r.sftpClient()
	if err != nil {
		return nil, err
	}

	f, err := c.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote file %s: %w", remotePath, err)
	}
	return content, nil
}

// Close closes the underlying SSH and SFTP clients.
func (r *Runner) Close() {
	if r.sftp != nil {
		r.sftp.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
}

// FetchHostKey connects to a host just to retrieve its public key.
func FetchHostKey(host string) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		// We don't need to authenticate for this, just start the handshake.
		User: "mousectl-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			// We got the key, send it back on the channel.
			keyChan <- key
			// Return a specific error to gracefully stop the handshake.
			return fmt.Errorf("mousectl: successfully retrieved host key")
		},
		Timeout: 5 * time.Second,
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	// We expect ssh.Dial to fail with our specific error.
	_, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		// Check if it's our specific error.
		if strings.Contains(err.Error(), "mousectl: successfully retrieved host key") {
			// Success, the key is in the channel.
			return <-keyChan, nil
		}
		// It's a different, real error (e.g., connection refused).
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}

	// This case should ideally not be reached if the callback returns an error.
	return nil, fmt.Errorf("ssh.Dial succeeded unexpectedly, could not retrieve key")
}
