package registry

import "sync"

// State is the single guarded module backing the port allocator, the
// client registry, and the connection registry. Keeping all three behind
// one mutex makes the operations that must be atomic together — like a
// register that replaces a socket, or a provisioning step that checks port
// availability and then records the new connection — trivial to get right.
type State struct {
	mu sync.Mutex

	openedPorts   []int
	maxOpenedPort int

	clientsByUUID   map[string]*Client
	clientsBySocket map[Socket]*Client

	connections []*Connection

	pending *pendingApprovals
}

// NewState builds an empty State configured with the given candidate sshd
// ports. openedPorts must be non-empty and sorted ascending.
func NewState(openedPorts []int) *State {
	max := 0
	for _, p := range openedPorts {
		if p > max {
			max = p
		}
	}
	return &State{
		openedPorts:     openedPorts,
		maxOpenedPort:   max,
		clientsByUUID:   make(map[string]*Client),
		clientsBySocket: make(map[Socket]*Client),
		pending:         newPendingApprovals(),
	}
}

// Upsert inserts or updates a Client keyed by UUID, replacing any previous
// socket binding for that UUID. Returns true if this UUID is new.
func (s *State) Upsert(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clientsByUUID[c.UUID]
	if ok {
		delete(s.clientsBySocket, existing.Socket)
	}
	s.clientsByUUID[c.UUID] = c
	s.clientsBySocket[c.Socket] = c
	return !ok
}

// BySocket returns the Client bound to sock, if any.
func (s *State) BySocket(sock Socket) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clientsBySocket[sock]
	return c, ok
}

// FindSenderByPrefix returns every sender client whose UUID begins with
// prefix.
func (s *State) FindSenderByPrefix(prefix string) []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*Client
	for _, c := range s.clientsByUUID {
		if c.ClientType == Sender && hasPrefix(c.UUID, prefix) {
			matches = append(matches, c)
		}
	}
	return matches
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// RemoveClient detaches and returns the Client bound to sock, if any.
func (s *State) RemoveClient(sock Socket) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clientsBySocket[sock]
	if !ok {
		return nil, false
	}
	delete(s.clientsBySocket, sock)
	delete(s.clientsByUUID, c.UUID)
	return c, true
}

// FindConnectionByParticipant returns the live connection c participates
// in, if any.
func (s *State) FindConnectionByParticipant(c *Client) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.HasParticipant(c) {
			return conn, true
		}
	}
	return nil, false
}

// AllocateAndInsert atomically allocates an sshd/local port pair and
// records a new Connection for it, built by calling build with the chosen
// ports. build must not block.
func (s *State) AllocateAndInsert(build func(sshdPort, localPort int) *Connection) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sshdPort, localPort, err := s.allocatePorts()
	if err != nil {
		return nil, err
	}
	conn := build(sshdPort, localPort)
	s.connections = append(s.connections, conn)
	return conn, nil
}

// RemoveConnection removes conn from the registry, freeing its ports for
// reuse. It reports whether conn was still present, so a caller racing
// against another remover (the lifecycle reaper vs. an unexpected sshd
// exit) can tell whether it was the one that actually tore things down.
func (s *State) RemoveConnection(conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.connections {
		if c == conn {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAndNotify removes the client bound to sock and any connection it
// participates in, returning the removed client, the removed connection
// (nil if none), the connection's other participant (nil if none), and any
// pending approval requesters who were waiting on this socket as their
// target. This mirrors the reaper's "remove client, find connection,
// notify the other peer" sequence as a single atomic step.
func (s *State) RemoveAndNotify(sock Socket) (client *Client, conn *Connection, other *Client, orphaned []PendingApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clientsBySocket[sock]
	if !ok {
		return nil, nil, nil, nil
	}
	delete(s.clientsBySocket, sock)
	delete(s.clientsByUUID, c.UUID)
	s.pending.cancelRequester(sock)
	orphaned = s.pending.DiscardAllFor(sock)

	for i, cn := range s.connections {
		if cn.HasParticipant(c) {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			return c, cn, cn.Other(c), orphaned
		}
	}
	return c, nil, nil, orphaned
}

// Pending exposes the pending-approvals sub-module.
func (s *State) Pending() *pendingApprovals {
	return s.pending
}

// ClientCount reports the number of currently registered clients.
func (s *State) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clientsByUUID)
}

// ConnectionCount reports the number of currently live tunnel connections.
func (s *State) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}
