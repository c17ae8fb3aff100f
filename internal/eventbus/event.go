package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind discriminates the producer of an event.
type SourceKind string

const (
	SourceSystem SourceKind = "system"
	SourceXmpp   SourceKind = "xmpp"
	SourceUi     SourceKind = "ui"
	SourcePlugin SourceKind = "plugin"
)

// UiTarget names which UI frontend an SourceUi event came from.
type UiTarget string

const (
	UiTui UiTarget = "tui"
	UiGui UiTarget = "gui"
)

// Source identifies the component that published an event, mirroring
// the tagged-union EventSource of the original waddle-social/app core
// (System(name) | Xmpp | Ui(target) | Plugin(id)).
type Source struct {
	Kind      SourceKind
	Component string   // set when Kind == SourceSystem
	UiTarget  UiTarget // set when Kind == SourceUi
	PluginID  string   // set when Kind == SourcePlugin
}

// SystemSource builds a Source for a named core component (e.g.
// "connection", "roster", "mam").
func SystemSource(component string) Source {
	return Source{Kind: SourceSystem, Component: component}
}

// XmppSource is the Source for events synthesized from the wire
// transport.
var XmppSource = Source{Kind: SourceXmpp}

// UiSource builds a Source for a UI frontend.
func UiSource(target UiTarget) Source {
	return Source{Kind: SourceUi, UiTarget: target}
}

// PluginSource builds a Source for a plugin by ID.
func PluginSource(id string) Source {
	return Source{Kind: SourcePlugin, PluginID: id}
}

// Payload is implemented by every event payload variant. payloadKind returns
// the discriminator used for logging and debugging; it is not used for
// dispatch (callers type-switch on the concrete Go type).
type Payload interface {
	payloadKind() string
}

// Event is the standard envelope wrapping every payload published on
// the bus.
type Event struct {
	Channel       Channel
	Timestamp     time.Time
	ID            uuid.UUID
	CorrelationID uuid.UUID // zero value (uuid.Nil) means "none"
	Source        Source
	Payload       Payload
}

// NewEvent constructs an Event with a fresh ID and the current UTC
// time, and no correlation ID.
func NewEvent(channel Channel, source Source, payload Payload) Event {
	return Event{
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		ID:        uuid.New(),
		Source:    source,
		Payload:   payload,
	}
}

// WithCorrelation constructs an Event carrying the given correlation ID,
// used to link a request event to its eventual response event(s) (e.g.
// system.sync.started / system.sync.completed).
func WithCorrelation(channel Channel, source Source, payload Payload, correlationID uuid.UUID) Event {
	evt := NewEvent(channel, source, payload)
	evt.CorrelationID = correlationID
	return evt
}

// HasCorrelation reports whether the event carries a correlation ID.
func (e Event) HasCorrelation() bool {
	return e.CorrelationID != uuid.Nil
}
