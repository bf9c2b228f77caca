package signaling

import "github.com/relayforge/broker/internal/registry"

// watchChild reaps the connection if sshd exits on its own, without
// waiting for either peer's socket to close — stronger than reacting only
// to disconnects. If the connection was already torn down by the ordinary
// disconnect path (which also kills the child, causing Wait to return
// here too), RemoveConnection reports it as already gone and this is a
// no-op — each peer still gets exactly one tunnel_close.
func (e *Engine) watchChild(instance child, conn *registry.Connection) {
	_ = instance.Wait()
	if !e.state.RemoveConnection(conn) {
		return
	}
	_ = e.keys.Remove(conn.SSHDPort)

	closeMsg := tunnelCloseMessage{Type: "tunnel_close"}
	if conn.Sender != nil && conn.Sender.Socket != nil {
		_ = conn.Sender.Socket.WriteJSON(closeMsg)
	}
	if conn.Receiver != nil && conn.Receiver.Socket != nil {
		_ = conn.Receiver.Socket.WriteJSON(closeMsg)
	}
}

// reap runs the C7 lifecycle cleanup for conn's owning socket on close.
func (e *Engine) reap(conn Conn) {
	client, removedConn, other, orphaned := e.state.RemoveAndNotify(conn)
	if client == nil {
		return
	}

	for _, approval := range orphaned {
		_ = approval.Requester.Socket.WriteJSON(fail("the target disconnected"))
	}

	if removedConn == nil {
		return
	}

	if other != nil && other.Socket != nil {
		_ = other.Socket.WriteJSON(tunnelCloseMessage{Type: "tunnel_close"})
	}
	if removedConn.Child != nil {
		_ = removedConn.Child.Kill()
	}
	if e.keys != nil {
		_ = e.keys.Remove(removedConn.SSHDPort)
	}
}
