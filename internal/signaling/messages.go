// Package signaling implements the websocket protocol engine: parsing and
// dispatching inbound messages, running the register/connect/approve/deny
// state machine, and provisioning tunnels through the registry, keys, and
// sshd packages.
package signaling

// inboundEnvelope is used only to read the discriminator field; the
// concrete payload is decoded again into the matching typed struct.
type inboundEnvelope struct {
	Type string `json:"type"`
}

type registerMessage struct {
	Type          string `json:"type"`
	SSHKey        string `json:"ssh_key"`
	UUID          string `json:"uuid"`
	AutoAccept    bool   `json:"auto_accept"`
	PortWhitelist []int  `json:"port_whitelist"`
	PortBlacklist []int  `json:"port_blacklist"`
	ClientType    string `json:"client_type"`
}

type connectToHostMessage struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Port   int    `json:"port"`
}

type connectAcceptMessage struct {
	Type string `json:"type"`
}

type connectDenyMessage struct {
	Type string `json:"type"`
}

// Outbound message variants.

type responseMessage struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type connectConfirmMessage struct {
	Type         string `json:"type"`
	SourceClient string `json:"source_client"`
	Port         int    `json:"port"`
}

type tunnelConnectMessage struct {
	Type          string `json:"type"`
	ClientType    string `json:"client_type"`
	User          string `json:"user"`
	SSHDPort      int    `json:"sshd_port"`
	LocalPort     int    `json:"local_port"`
	ForwardedPort int    `json:"forwarded_port"`
}

type tunnelCloseMessage struct {
	Type string `json:"type"`
}

func ok() responseMessage {
	return responseMessage{Type: "response", Success: true}
}

func fail(msg string) responseMessage {
	return responseMessage{Type: "response", Success: false, Error: msg}
}
