package signaling

import (
	"fmt"
	"sync"

	"github.com/relayforge/broker/internal/sshd"
)

// fakeKeyEmitter records script lifecycle calls without touching disk.
type fakeKeyEmitter struct {
	mu      sync.Mutex
	emitted map[int]bool
}

func newFakeKeyEmitter() *fakeKeyEmitter {
	return &fakeKeyEmitter{emitted: make(map[int]bool)}
}

func (f *fakeKeyEmitter) Emit(sshdPort int, publicKeys ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted[sshdPort] = true
	return fmt.Sprintf("/fake/authorized_keys_%d", sshdPort), nil
}

func (f *fakeKeyEmitter) Remove(sshdPort int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.emitted, sshdPort)
	return nil
}

// fakeChild is a never-exiting child process until told to exit.
type fakeChild struct {
	exit    chan struct{}
	killed  bool
	mu      sync.Mutex
}

func newFakeChild() *fakeChild {
	return &fakeChild{exit: make(chan struct{})}
}

func (c *fakeChild) Wait() error {
	<-c.exit
	return nil
}

func (c *fakeChild) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.killed {
		c.killed = true
		close(c.exit)
	}
	return nil
}

// fakeSupervisor spawns fakeChild instances instead of forking a real sshd.
type fakeSupervisor struct {
	mu       sync.Mutex
	spawned  []sshd.Options
	children []*fakeChild
	failNext bool
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{}
}

func (s *fakeSupervisor) Spawn(opts sshd.Options) (child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, fmt.Errorf("fake spawn failure")
	}
	s.spawned = append(s.spawned, opts)
	c := newFakeChild()
	s.children = append(s.children, c)
	return c, nil
}

func (s *fakeSupervisor) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}
