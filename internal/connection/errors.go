package connection

import "fmt"

// ErrorKind classifies a transport failure for retry purposes, mirroring
// the retryability contract of original_source/crates/xmpp/src/connection.rs.
type ErrorKind string

const (
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindNetwork           ErrorKind = "network"
	ErrKindServerDisconnect  ErrorKind = "server_disconnect"
	ErrKindAuthentication    ErrorKind = "authentication"
	ErrKindProtocol          ErrorKind = "protocol"
	ErrKindMalformedConfig   ErrorKind = "malformed_config"
)

// retryableKinds are the transport failure kinds §4.3 classifies as
// retryable: timeouts, network errors, and server-initiated disconnects.
var retryableKinds = map[ErrorKind]bool{
	ErrKindTimeout:          true,
	ErrKindNetwork:          true,
	ErrKindServerDisconnect: true,
}

// TransportError is the error a Transport must return from Connect so the
// manager can classify it. Any error a Transport returns that is not a
// *TransportError is treated as ErrKindNetwork (conservatively retryable).
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection: %s", e.Kind)
	}
	return fmt.Sprintf("connection: %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// retryable classifies err per the transport contract in spec.md §4.3.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TransportError); ok {
		return retryableKinds[te.Kind]
	}
	return true
}

func classify(err error) ErrorKind {
	if te, ok := err.(*TransportError); ok {
		return te.Kind
	}
	return ErrKindNetwork
}
