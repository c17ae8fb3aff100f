// Package connection implements the XMPP connection lifecycle state
// machine: connect/disconnect, exponential-backoff reconnection, and
// retryability classification, grounded on internal/connwatch's
// two-phase backoff loop and original_source/crates/xmpp/src/connection.rs.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waddle-social/app/internal/eventbus"
)

// State is a connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Manager owns the connection state machine for one account. State and
// Attempt are readable from any goroutine without blocking on I/O; an
// internal lock guards only those fields, so Connect and Disconnect are
// not serialized against each other.
type Manager struct {
	bus       *eventbus.Bus
	transport Transport
	cfg       Config
	logger    *slog.Logger

	mu      sync.RWMutex
	state   State
	attempt uint32
}

// New constructs a Manager. A nil logger falls back to slog.Default().
func New(bus *eventbus.Bus, transport Transport, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, transport: transport, cfg: cfg, logger: logger, state: Disconnected}
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempt reports the current reconnect attempt counter (0 outside of a
// Reconnecting/Connecting-after-failure state).
func (m *Manager) Attempt() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Connect runs the connect/retry loop described in spec.md §4.3. It
// returns once Connected, or once a non-retryable error or context
// cancellation ends the loop; retryable failures are handled internally
// with backoff sleeps and never returned to the caller.
func (m *Manager) Connect(ctx context.Context) error {
	if m.State() == Connected {
		return nil
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.setState(Connecting)
		err := m.transport.Connect(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.state = Connected
			m.attempt = 0
			m.mu.Unlock()
			m.publish(eventbus.ChConnectionEstablished, eventbus.ConnectionEstablished{JID: m.cfg.JID})
			return nil
		}

		m.mu.Lock()
		m.attempt++
		attempt := m.attempt
		m.mu.Unlock()

		willRetry := retryable(err) && (m.cfg.MaxReconnectAttempts == 0 || attempt <= m.cfg.MaxReconnectAttempts)

		m.publish(eventbus.ChConnectionLost, eventbus.ConnectionLost{Reason: err.Error(), WillRetry: willRetry})
		m.publish(eventbus.ChErrorOccurred, eventbus.ErrorOccurred{
			Component:   "connection",
			Message:     err.Error(),
			Recoverable: willRetry,
		})

		if !willRetry {
			m.mu.Lock()
			m.state = Disconnected
			m.attempt = 0
			m.mu.Unlock()
			return fmt.Errorf("connection: connect failed (%s, not retryable): %w", classify(err), err)
		}

		m.publish(eventbus.ChConnectionReconnecting, eventbus.ConnectionReconnecting{Attempt: attempt})
		m.setState(Reconnecting)

		delay := ReconnectDelay(attempt)
		m.logger.Debug("connection retrying", "attempt", attempt, "delay", delay.String(), "error", err)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// Disconnect closes the transport if held and transitions to
// Disconnected, per spec.md §4.3.
func (m *Manager) Disconnect(ctx context.Context) error {
	if m.State() == Disconnected {
		return nil
	}

	err := m.transport.Close(ctx)
	m.setState(Disconnected)
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()

	m.publish(eventbus.ChConnectionLost, eventbus.ConnectionLost{Reason: "user requested disconnect", WillRetry: false})
	if err != nil {
		m.publish(eventbus.ChErrorOccurred, eventbus.ErrorOccurred{
			Component:   "connection",
			Message:     err.Error(),
			Recoverable: false,
		})
		return fmt.Errorf("connection: disconnect: %w", err)
	}
	return nil
}

func (m *Manager) publish(ch eventbus.Channel, payload eventbus.Payload) {
	evt := eventbus.NewEvent(ch, eventbus.SystemSource("connection"), payload)
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Error("publish failed", "channel", ch.String(), "error", err)
	}
}
