// Package hostkey bootstraps the host-key files a spawned sshd presents to
// connecting clients. Generation is a one-shot external-process call, not
// something this service implements itself — it shells out to ssh-keygen
// the same way the broker shells out to sshd for everything else.
package hostkey

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Spec describes one host key type to ensure exists.
type Spec struct {
	Type     string // "rsa", "ecdsa", "ed25519"
	Filename string
	Bits     int // only meaningful for rsa
}

// DefaultSpecs is the standard multi-algorithm set an sshd presents.
var DefaultSpecs = []Spec{
	{Type: "rsa", Filename: "ssh_host_rsa_key", Bits: 4096},
	{Type: "ecdsa", Filename: "ssh_host_ecdsa_key"},
	{Type: "ed25519", Filename: "ssh_host_ed25519_key"},
}

// EnsureAll makes sure every key in specs exists under dir, generating
// whichever ones are missing via ssh-keygen. It returns the absolute paths
// of all private key files, in the same order as specs.
func EnsureAll(dir string, specs []Spec) ([]string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("hostkey: resolve dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("hostkey: create dir: %w", err)
	}

	paths := make([]string, 0, len(specs))
	for _, spec := range specs {
		path := filepath.Join(dir, spec.Filename)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
			continue
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("hostkey: stat %s: %w", path, err)
		}

		if err := generate(path, spec); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Fingerprint returns the SHA256 fingerprint of the public half of the
// private key file at path, in the same form `ssh-keygen -lf` prints.
func Fingerprint(path string) (string, error) {
	pub := path + ".pub"
	data, err := os.ReadFile(pub)
	if err != nil {
		return "", fmt.Errorf("hostkey: read %s: %w", pub, err)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return "", fmt.Errorf("hostkey: parse %s: %w", pub, err)
	}
	return ssh.FingerprintSHA256(key), nil
}

func generate(path string, spec Spec) error {
	args := []string{"-t", spec.Type, "-f", path, "-N", "", "-q"}
	if spec.Type == "rsa" && spec.Bits > 0 {
		args = append(args, "-b", fmt.Sprintf("%d", spec.Bits))
	}
	cmd := exec.Command("ssh-keygen", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hostkey: ssh-keygen -t %s: %w: %s", spec.Type, err, out)
	}
	return nil
}
