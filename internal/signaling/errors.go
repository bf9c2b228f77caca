package signaling

// Kind enumerates the error categories a session can encounter. Every kind
// is reported to the offending socket as a response(success=false); none
// of them is fatal to the process.
type Kind string

const (
	SchemaInvalid   Kind = "SchemaInvalid"
	NotRegistered   Kind = "NotRegistered"
	TargetNotFound  Kind = "TargetNotFound"
	TargetAmbiguous Kind = "TargetAmbiguous"
	PortDenied      Kind = "PortDenied"
	ServerFull      Kind = "ServerFull"
	PeerDenied      Kind = "PeerDenied"
	Internal        Kind = "Internal"
)

// protoError pairs a Kind with the human-readable message sent back on the
// wire. It implements error so handlers can return it like any other Go
// error and have the engine translate it into a response frame.
type protoError struct {
	kind    Kind
	message string
}

func (e *protoError) Error() string { return e.message }

func newErr(kind Kind, message string) *protoError {
	return &protoError{kind: kind, message: message}
}
