// Package sshd supervises the short-lived, hardened sshd instances the
// broker spawns per tunnel: one bound to a dedicated port pair, configured
// entirely on the command line, torn down the moment the tunnel closes.
package sshd

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"
)

// Options describes one sshd instance to spawn.
type Options struct {
	SSHDPath           string
	ForwardingUser     string
	SSHDPort           int
	LocalPort          int
	AuthorizedKeysCmd  string
	HostKeyPaths       []string
	AuthorizedKeysUser string
}

// Instance is a running sshd child process.
type Instance struct {
	cmd  *exec.Cmd
	Port int
}

// Supervisor spawns and tracks sshd child processes.
type Supervisor struct{}

// NewSupervisor returns a ready-to-use Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Spawn starts sshd in foreground mode with every relevant option supplied
// via -o, overriding /dev/null as its config file. It does not wait for
// sshd to finish binding; call WaitReady for that.
func (s *Supervisor) Spawn(opts Options) (*Instance, error) {
	args := []string{"-D", "-f", "/dev/null"}
	for _, opt := range buildOptions(opts) {
		args = append(args, "-o", opt)
	}
	for _, hostKey := range opts.HostKeyPaths {
		args = append(args, "-o", "HostKey="+hostKey)
	}

	cmd := exec.Command(opts.SSHDPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sshd: start: %w", err)
	}

	return &Instance{cmd: cmd, Port: opts.SSHDPort}, nil
}

func buildOptions(opts Options) []string {
	authKeysUser := opts.AuthorizedKeysUser
	if authKeysUser == "" {
		authKeysUser = "nobody"
	}
	return []string{
		"AllowUsers=" + opts.ForwardingUser,
		"PasswordAuthentication=no",
		"PubkeyAuthentication=yes",
		"AllowTcpForwarding=yes",
		"PermitTunnel=no",
		"PermitRootLogin=no",
		"X11Forwarding=no",
		"PermitUserEnvironment=no",
		"AllowAgentForwarding=no",
		fmt.Sprintf("Port=%d", opts.SSHDPort),
		fmt.Sprintf("PermitOpen=localhost:%d", opts.LocalPort),
		"AuthorizedKeysCommandUser=" + authKeysUser,
		"AuthorizedKeysCommand=" + opts.AuthorizedKeysCmd,
	}
}

// WaitReady probes localhost:port with a short retrying TCP dial, replacing
// a fixed warm-up sleep with an actual readiness check. It gives up after
// timeout and returns the last dial error.
func WaitReady(ctx context.Context, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("sshd: not ready on %s after %s: %w", addr, timeout, lastErr)
}

// Kill terminates the sshd child. It is safe to call more than once.
func (i *Instance) Kill() error {
	if i.cmd.Process == nil {
		return nil
	}
	return i.cmd.Process.Kill()
}

// Wait blocks until the sshd child exits and returns its error, the same
// shape callers use to detect an unexpected exit and reap the connection.
func (i *Instance) Wait() error {
	return i.cmd.Wait()
}
