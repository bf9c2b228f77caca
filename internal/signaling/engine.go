package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/relayforge/broker/internal/registry"
	"github.com/relayforge/broker/internal/sshd"
)

// Conn is the subset of *websocket.Conn the engine needs to run a session.
// httpapi passes the real connection in; tests pass an in-memory fake.
type Conn interface {
	registry.Socket
	ReadJSON(v interface{}) error
}

// keyEmitter is the subset of *keys.Emitter the engine needs; tests supply
// a fake that never touches the filesystem.
type keyEmitter interface {
	Emit(sshdPort int, publicKeys ...string) (string, error)
	Remove(sshdPort int) error
}

// child is the subset of *sshd.Instance the engine needs.
type child interface {
	Wait() error
	Kill() error
}

// supervisor is the subset of *sshd.Supervisor the engine needs; tests
// supply a fake that never forks a real sshd.
type supervisor interface {
	Spawn(opts sshd.Options) (child, error)
}

// realSupervisor adapts *sshd.Supervisor's concrete *sshd.Instance return
// value to the engine's child interface.
type realSupervisor struct {
	*sshd.Supervisor
}

func (r realSupervisor) Spawn(opts sshd.Options) (child, error) {
	return r.Supervisor.Spawn(opts)
}

// NewSupervisor wraps a real *sshd.Supervisor for use with NewEngine.
func NewSupervisor(s *sshd.Supervisor) supervisor {
	return realSupervisor{s}
}

// Config carries the pieces of broker configuration the engine consults
// while provisioning a tunnel.
type Config struct {
	ForwardingUser     string
	SSHDPath           string
	AuthorizedKeysUser string
	HostKeyPaths       []string
	ReadyTimeout       time.Duration
}

// Engine runs the register/connect/approve/deny/close state machine for
// every connected socket, against a shared registry.State.
type Engine struct {
	state *registry.State
	keys  keyEmitter
	sshd  supervisor
	cfg   Config
}

// NewEngine wires the protocol engine to its collaborators.
func NewEngine(state *registry.State, emitter keyEmitter, sup supervisor, cfg Config) *Engine {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	return &Engine{state: state, keys: emitter, sshd: sup, cfg: cfg}
}

// Run reads messages from conn until it closes or errors, dispatching each
// one to completion before reading the next — the cooperative,
// one-event-at-a-time model the registry's single mutex depends on.
func (e *Engine) Run(ctx context.Context, conn Conn) {
	defer e.reap(conn)

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return
		}

		if err := e.HandleRaw(ctx, conn, raw); err != nil {
			_ = conn.WriteJSON(toResponse(err))
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, conn Conn, msgType string, raw []byte) error {
	switch msgType {
	case "register":
		var m registerMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return newErr(SchemaInvalid, err.Error())
		}
		return e.handleRegister(conn, m)
	case "connect_to_host":
		var m connectToHostMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return newErr(SchemaInvalid, err.Error())
		}
		return e.handleConnectToHost(ctx, conn, m)
	case "connect_accept":
		return e.handleConnectAccept(ctx, conn)
	case "connect_deny":
		return e.handleConnectDeny(conn)
	default:
		return newErr(SchemaInvalid, fmt.Sprintf("unknown message type %q", msgType))
	}
}

// HandleRaw decodes one wire frame's discriminator and dispatches it. It is
// exported so both Run's read loop and tests can feed raw JSON through the
// same path.
func (e *Engine) HandleRaw(ctx context.Context, conn Conn, raw []byte) error {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return newErr(SchemaInvalid, err.Error())
	}
	return e.dispatch(ctx, conn, env.Type, raw)
}

func toResponse(err error) responseMessage {
	return fail(err.Error())
}

func (e *Engine) handleRegister(conn Conn, m registerMessage) error {
	ct := registry.ClientType(m.ClientType)
	if ct != registry.Sender && ct != registry.Receiver {
		return newErr(SchemaInvalid, fmt.Sprintf("invalid client_type %q", m.ClientType))
	}
	if m.UUID == "" {
		return newErr(SchemaInvalid, "uuid is required")
	}
	if m.SSHKey == "" {
		return newErr(SchemaInvalid, "ssh_key is required")
	}
	for _, p := range append(append([]int{}, m.PortWhitelist...), m.PortBlacklist...) {
		if p < 1 || p > 65535 {
			return newErr(SchemaInvalid, fmt.Sprintf("port %d out of range", p))
		}
	}
	if len(m.PortWhitelist) > 0 && len(m.PortBlacklist) > 0 {
		return newErr(SchemaInvalid, "port_whitelist and port_blacklist are mutually exclusive")
	}

	client := &registry.Client{
		UUID:          m.UUID,
		SSHKey:        m.SSHKey,
		AutoAccept:    m.AutoAccept,
		PortWhitelist: m.PortWhitelist,
		PortBlacklist: m.PortBlacklist,
		ClientType:    ct,
		Socket:        conn,
	}
	e.state.Upsert(client)

	return conn.WriteJSON(ok())
}

func (e *Engine) handleConnectToHost(ctx context.Context, conn Conn, m connectToHostMessage) error {
	requester, registered := e.state.BySocket(conn)
	if !registered {
		return newErr(NotRegistered, "you are not registered")
	}
	if requester.ClientType != registry.Receiver {
		return newErr(SchemaInvalid, "only a receiver may send connect_to_host")
	}
	if m.Port < 1 || m.Port > 65535 {
		return newErr(SchemaInvalid, fmt.Sprintf("port %d out of range", m.Port))
	}

	matches := e.state.FindSenderByPrefix(m.Target)
	switch {
	case len(matches) == 0:
		return newErr(TargetNotFound, "no match")
	case len(matches) > 1:
		return newErr(TargetAmbiguous, "ambiguous prefix")
	}
	target := matches[0]

	if !target.AllowsPort(m.Port) {
		return newErr(PortDenied, fmt.Sprintf("port %d is denied by the target's whitelist/blacklist policy", m.Port))
	}

	if target.AutoAccept {
		return e.provision(ctx, target, requester, m.Port)
	}

	e.state.Pending().Enqueue(target.Socket, registry.PendingApproval{Requester: requester, Port: m.Port})
	return target.Socket.WriteJSON(connectConfirmMessage{
		Type:         "connect_confirm",
		SourceClient: requester.UUID,
		Port:         m.Port,
	})
}

func (e *Engine) handleConnectAccept(ctx context.Context, conn Conn) error {
	target, registered := e.state.BySocket(conn)
	if !registered {
		return newErr(NotRegistered, "you are not registered")
	}
	approval, ok := e.state.Pending().Dequeue(conn)
	if !ok {
		return nil
	}
	return e.provision(ctx, target, approval.Requester, approval.Port)
}

func (e *Engine) handleConnectDeny(conn Conn) error {
	target, registered := e.state.BySocket(conn)
	if !registered {
		return newErr(NotRegistered, "you are not registered")
	}
	approval, ok := e.state.Pending().Dequeue(conn)
	if !ok {
		return nil
	}
	return approval.Requester.Socket.WriteJSON(fail("The client denied the connection"))
}

// provision is the atomic-from-the-engine's-view sequence: allocate ports
// and record the connection in one step, emit the authorized-keys script,
// spawn sshd, wait for it to be ready, then notify both peers. If emitting
// or spawning fails, the recorded connection is removed again.
func (e *Engine) provision(ctx context.Context, sender, receiver *registry.Client, requestedPort int) error {
	conn, err := e.state.AllocateAndInsert(func(sshdPort, localPort int) *registry.Connection {
		return &registry.Connection{Sender: sender, Receiver: receiver, SSHDPort: sshdPort, LocalPort: localPort}
	})
	if err != nil {
		return newErr(ServerFull, "Server is full")
	}

	scriptPath, err := e.keys.Emit(conn.SSHDPort, sender.SSHKey, receiver.SSHKey)
	if err != nil {
		e.state.RemoveConnection(conn)
		return newErr(Internal, err.Error())
	}
	conn.ScriptPath = scriptPath

	inst, err := e.sshd.Spawn(sshd.Options{
		SSHDPath:           e.cfg.SSHDPath,
		ForwardingUser:     e.cfg.ForwardingUser,
		SSHDPort:           conn.SSHDPort,
		LocalPort:          conn.LocalPort,
		AuthorizedKeysCmd:  scriptPath,
		HostKeyPaths:       e.cfg.HostKeyPaths,
		AuthorizedKeysUser: e.cfg.AuthorizedKeysUser,
	})
	if err != nil {
		e.state.RemoveConnection(conn)
		_ = e.keys.Remove(conn.SSHDPort)
		return newErr(Internal, err.Error())
	}
	conn.Child = inst

	if err := sshd.WaitReady(ctx, conn.SSHDPort, e.cfg.ReadyTimeout); err != nil {
		log.Warn().Err(err).Int("sshd_port", conn.SSHDPort).Msg("sshd readiness probe failed, continuing anyway")
	}

	correlationID := uuid.NewString()
	log.Info().
		Str("correlation_id", correlationID).
		Str("sender", sender.UUID).
		Str("receiver", receiver.UUID).
		Int("sshd_port", conn.SSHDPort).
		Int("local_port", conn.LocalPort).
		Msg("tunnel provisioned")

	go e.watchChild(inst, conn)

	if err := receiver.Socket.WriteJSON(tunnelConnectMessage{
		Type:          "tunnel_connect",
		ClientType:    string(registry.Receiver),
		User:          e.cfg.ForwardingUser,
		SSHDPort:      conn.SSHDPort,
		LocalPort:     conn.LocalPort,
		ForwardedPort: 0,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to notify receiver of tunnel_connect")
	}

	return sender.Socket.WriteJSON(tunnelConnectMessage{
		Type:          "tunnel_connect",
		ClientType:    string(registry.Sender),
		User:          e.cfg.ForwardingUser,
		SSHDPort:      conn.SSHDPort,
		LocalPort:     conn.LocalPort,
		ForwardedPort: requestedPort,
	})
}
