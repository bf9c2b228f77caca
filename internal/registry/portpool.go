package registry

import "fmt"

// ErrServerFull is returned when every configured sshd port is already held
// by a live connection.
var ErrServerFull = fmt.Errorf("server is full")

// allocatePorts picks the first sshd port in candidates not held by any live
// connection, and a local port starting just above the highest candidate,
// incrementing past any local port already in use. Callers must hold s.mu.
func (s *State) allocatePorts() (sshdPort, localPort int, err error) {
	usedSSHD := make(map[int]bool, len(s.connections))
	usedLocal := make(map[int]bool, len(s.connections))
	for _, conn := range s.connections {
		usedSSHD[conn.SSHDPort] = true
		usedLocal[conn.LocalPort] = true
	}

	sshdPort = -1
	for _, p := range s.openedPorts {
		if !usedSSHD[p] {
			sshdPort = p
			break
		}
	}
	if sshdPort == -1 {
		return 0, 0, ErrServerFull
	}

	localPort = s.maxOpenedPort + 1
	for usedLocal[localPort] {
		localPort++
	}

	return sshdPort, localPort, nil
}
