package mqtt

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	// EventConnect reports the outcome of a connection attempt.
	EventConnect EventKind = iota + 1

	// EventMessage carries one delivered message.
	EventMessage

	// EventDisconnect reports the end of a connection.
	EventDisconnect
)

// Status codes carried by connect and disconnect events.
const (
	// CodeSuccess marks an accepted connection or a clean disconnect.
	CodeSuccess byte = 0

	// CodeUnexpectedDisconnect marks a connection lost without a DISCONNECT from us.
	CodeUnexpectedDisconnect byte = 1
)

// String returns a lowercase name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventMessage:
		return "message"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is one protocol occurrence, in delivery order.
//
// For EventConnect, Code is the CONNACK return code. For EventDisconnect,
// Code is CodeSuccess for a disconnect we asked for and non-zero otherwise;
// Err holds the cause when known. For EventMessage, Topic and Payload are set
// and Payload is owned by the receiver.
type Event struct {
	Kind    EventKind
	Code    byte
	Topic   string
	Payload []byte
	Err     error
}
