// Package keys emits the ephemeral AuthorizedKeysCommand scripts a
// per-connection sshd uses to resolve which public keys it should accept.
package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const restrictedCommand = `command="echo 'This account is restricted to port forwarding'",no-pty,no-agent-forwarding,no-X11-forwarding`

// shellDoubleQuote renders s as a double-quoted POSIX sh word whose
// expansion is exactly s. Unlike wrapping in single quotes, this works even
// when s itself contains single quotes (as restrictedCommand does) —
// closing and reopening a single-quoted string to smuggle one through
// would strip it from the printed output instead of preserving it.
func shellDoubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// Emitter writes and removes the authorized_keys_<sshd_port> scripts under
// a single directory.
type Emitter struct {
	dir string
}

// NewEmitter returns an Emitter rooted at dir, creating it with owner-only
// permissions if it does not already exist.
func NewEmitter(dir string) (*Emitter, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keys: create dir: %w", err)
	}
	return &Emitter{dir: dir}, nil
}

// Path returns the script path for the given sshd port without writing it.
func (e *Emitter) Path(sshdPort int) string {
	return filepath.Join(e.dir, fmt.Sprintf("authorized_keys_%d", sshdPort))
}

// Emit writes an executable script at Path(sshdPort) that prints one
// restricted authorized_keys line per key, in the order given. An existing
// file at that path is removed first.
func (e *Emitter) Emit(sshdPort int, publicKeys ...string) (string, error) {
	path := e.Path(sshdPort)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("keys: remove stale script: %w", err)
	}

	script := "#!/bin/sh\n"
	for _, key := range publicKeys {
		line := restrictedCommand + " " + key
		script += "printf '%s\\n' " + shellDoubleQuote(line) + "\n"
	}

	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		return "", fmt.Errorf("keys: write script: %w", err)
	}
	// WriteFile's mode is subject to umask; the original source's mistake
	// was relying on this alone. Set it explicitly so sshd can always
	// execute it regardless of the process umask.
	if err := os.Chmod(path, 0o700); err != nil {
		return "", fmt.Errorf("keys: chmod script: %w", err)
	}

	return path, nil
}

// Remove deletes the script for sshdPort, if present.
func (e *Emitter) Remove(sshdPort int) error {
	err := os.Remove(e.Path(sshdPort))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keys: remove script: %w", err)
	}
	return nil
}
