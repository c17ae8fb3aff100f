package connection

import "context"

// Config describes the account a Transport connects as. The wire-level
// details (host, TLS, SASL mechanism) live entirely inside whatever
// Transport implementation the caller supplies; this module only needs
// the JID it reports once connected.
type Config struct {
	JID                  string
	MaxReconnectAttempts uint32 // 0 = infinite
}

// Transport is supplied by the caller and performs the actual XMPP wire
// handshake. This module ships faketransport for tests and the CLI
// harness; a real implementation (TLS + SASL) is out of scope.
type Transport interface {
	Connect(ctx context.Context, cfg Config) error
	Close(ctx context.Context) error
}
