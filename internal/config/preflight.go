package config

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
)

// Preflight validates the host environment the way a production daemon
// must before it opens a listener: missing binaries or system users are
// fatal, not recoverable at request time.
func Preflight(cfg *Config) error {
	if err := checkSSHD(cfg.SSHDPath); err != nil {
		return err
	}
	if _, err := user.Lookup(cfg.ForwardingUser); err != nil {
		return fmt.Errorf("preflight: forwarding user %q does not exist: %w", cfg.ForwardingUser, err)
	}
	if len(cfg.OpenedPorts) == 0 {
		return fmt.Errorf("preflight: OPENED_PORTS is empty")
	}
	return nil
}

func checkSSHD(path string) error {
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("preflight: sshd path %q is a directory", path)
		}
		return nil
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("preflight: sshd binary %q not found: %w", path, err)
	}
	return nil
}
