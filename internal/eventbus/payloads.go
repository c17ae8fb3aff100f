package eventbus

import "time"

// Subscription is the roster subscription state of a contact, per
// RFC 6121 section 3.
type Subscription string

const (
	SubNone   Subscription = "none"
	SubTo     Subscription = "to"
	SubFrom   Subscription = "from"
	SubBoth   Subscription = "both"
	SubRemove Subscription = "remove"
)

// MessageType is the XMPP stanza "type" attribute of a <message/>.
type MessageType string

const (
	MessageChat      MessageType = "chat"
	MessageGroupchat MessageType = "groupchat"
	MessageNormal    MessageType = "normal"
	MessageHeadline  MessageType = "headline"
	MessageError     MessageType = "error"
)

// PresenceShow is the XMPP <show/> value (RFC 6121 section 4.7.2.1),
// with PresenceUnavailable standing in for a <presence type="unavailable"/>.
type PresenceShow string

const (
	PresenceAvailable   PresenceShow = "available"
	PresenceChat        PresenceShow = "chat"
	PresenceAway        PresenceShow = "away"
	PresenceXa          PresenceShow = "xa"
	PresenceDnd         PresenceShow = "dnd"
	PresenceUnavailable PresenceShow = "unavailable"
)

// ChatState is a XEP-0085 chat state notification.
type ChatState string

const (
	ChatStateActive    ChatState = "active"
	ChatStateComposing ChatState = "composing"
	ChatStatePaused    ChatState = "paused"
	ChatStateInactive  ChatState = "inactive"
	ChatStateGone      ChatState = "gone"
)

// MucAffiliation is a MUC room affiliation (XEP-0045).
type MucAffiliation string

const (
	MucAffiliationOwner   MucAffiliation = "owner"
	MucAffiliationAdmin   MucAffiliation = "admin"
	MucAffiliationMember  MucAffiliation = "member"
	MucAffiliationOutcast MucAffiliation = "outcast"
	MucAffiliationNone    MucAffiliation = "none"
)

// MucRole is a MUC room role (XEP-0045). MucRoleNone denotes departure.
type MucRole string

const (
	MucRoleModerator   MucRole = "moderator"
	MucRoleParticipant MucRole = "participant"
	MucRoleVisitor     MucRole = "visitor"
	MucRoleNone        MucRole = "none"
)

// ScrollDirection is the direction of a ui.scroll request.
type ScrollDirection string

const (
	ScrollUp     ScrollDirection = "up"
	ScrollDown   ScrollDirection = "down"
	ScrollTop    ScrollDirection = "top"
	ScrollBottom ScrollDirection = "bottom"
)

// RosterItem is a single entry in the XMPP roster.
type RosterItem struct {
	JID          string
	Name         string
	Subscription Subscription
	Groups       []string
}

// ChatMessage is a 1:1 or MUC chat message. ID is the dedup key;
// persistence of a ChatMessage must be idempotent on it.
type ChatMessage struct {
	ID          string
	From        string
	To          string
	Body        string
	Timestamp   time.Time
	MessageType MessageType
	Thread      string // empty means absent
}

// MucOccupant is a single occupant of a MUC room, keyed by (room, nick).
type MucOccupant struct {
	Nick        string
	JID         string // empty means not visible
	Affiliation MucAffiliation
	Role        MucRole
}

// Below: every payload variant, grouped by domain as in spec.md §3 and
// the event-payload tagged union of original_source/crates/core/src/event.rs.
// Each type's payloadKind method satisfies the Payload interface.

// ── System lifecycle ────────────────────────────────────────────────

type StartupComplete struct{}

func (StartupComplete) payloadKind() string { return "startup_complete" }

type ShutdownRequested struct{ Reason string }

func (ShutdownRequested) payloadKind() string { return "shutdown_requested" }

type ConnectionEstablished struct{ JID string }

func (ConnectionEstablished) payloadKind() string { return "connection_established" }

type ConnectionLost struct {
	Reason    string
	WillRetry bool
}

func (ConnectionLost) payloadKind() string { return "connection_lost" }

type ConnectionReconnecting struct{ Attempt uint32 }

func (ConnectionReconnecting) payloadKind() string { return "connection_reconnecting" }

type GoingOffline struct{}

func (GoingOffline) payloadKind() string { return "going_offline" }

type ComingOnline struct{}

func (ComingOnline) payloadKind() string { return "coming_online" }

type SyncStarted struct{}

func (SyncStarted) payloadKind() string { return "sync_started" }

type SyncCompleted struct{ MessagesSynced uint64 }

func (SyncCompleted) payloadKind() string { return "sync_completed" }

type ConfigReloaded struct{}

func (ConfigReloaded) payloadKind() string { return "config_reloaded" }

type ErrorOccurred struct {
	Component   string
	Message     string
	Recoverable bool
}

func (ErrorOccurred) payloadKind() string { return "error_occurred" }

// ── Roster ───────────────────────────────────────────────────────────

type RosterReceived struct{ Items []RosterItem }

func (RosterReceived) payloadKind() string { return "roster_received" }

type RosterUpdated struct{ Item RosterItem }

func (RosterUpdated) payloadKind() string { return "roster_updated" }

type RosterRemoved struct{ JID string }

func (RosterRemoved) payloadKind() string { return "roster_removed" }

type RosterFetchRequested struct{}

func (RosterFetchRequested) payloadKind() string { return "roster_fetch_requested" }

type RosterAddRequested struct {
	JID    string
	Name   string
	Groups []string
}

func (RosterAddRequested) payloadKind() string { return "roster_add_requested" }

type SubscriptionRequest struct{ From string }

func (SubscriptionRequest) payloadKind() string { return "subscription_request" }

type SubscriptionApproved struct{ JID string }

func (SubscriptionApproved) payloadKind() string { return "subscription_approved" }

type SubscriptionRevoked struct{ JID string }

func (SubscriptionRevoked) payloadKind() string { return "subscription_revoked" }

// ── Presence ─────────────────────────────────────────────────────────

type PresenceChanged struct {
	JID      string
	Show     PresenceShow
	Status   string
	Priority int8
}

func (PresenceChanged) payloadKind() string { return "presence_changed" }

type OwnPresenceChanged struct {
	Show   PresenceShow
	Status string
}

func (OwnPresenceChanged) payloadKind() string { return "own_presence_changed" }

type PresenceSetRequested struct {
	Show   PresenceShow
	Status string
}

func (PresenceSetRequested) payloadKind() string { return "presence_set_requested" }

// ── 1:1 messaging ────────────────────────────────────────────────────

type MessageReceived struct{ Message ChatMessage }

func (MessageReceived) payloadKind() string { return "message_received" }

type MessageSent struct{ Message ChatMessage }

func (MessageSent) payloadKind() string { return "message_sent" }

type MessageDelivered struct {
	ID string
	To string
}

func (MessageDelivered) payloadKind() string { return "message_delivered" }

type MessageSendRequested struct {
	ID   string
	To   string
	Body string
}

func (MessageSendRequested) payloadKind() string { return "message_send_requested" }

type ChatStateReceived struct {
	From  string
	State ChatState
}

func (ChatStateReceived) payloadKind() string { return "chat_state_received" }

type ChatStateSendRequested struct {
	To    string
	State ChatState
}

func (ChatStateSendRequested) payloadKind() string { return "chat_state_send_requested" }

// ── MUC ──────────────────────────────────────────────────────────────

type MucMessageReceived struct {
	Room    string
	Message ChatMessage
}

func (MucMessageReceived) payloadKind() string { return "muc_message_received" }

type MucJoined struct {
	Room string
	Nick string
}

func (MucJoined) payloadKind() string { return "muc_joined" }

type MucLeft struct{ Room string }

func (MucLeft) payloadKind() string { return "muc_left" }

type MucSubjectChanged struct {
	Room    string
	Subject string
}

func (MucSubjectChanged) payloadKind() string { return "muc_subject_changed" }

type MucOccupantChanged struct {
	Room     string
	Occupant MucOccupant
}

func (MucOccupantChanged) payloadKind() string { return "muc_occupant_changed" }

type MucJoinRequested struct {
	Room string
	Nick string
}

func (MucJoinRequested) payloadKind() string { return "muc_join_requested" }

type MucSendRequested struct {
	Room string
	Body string
}

func (MucSendRequested) payloadKind() string { return "muc_send_requested" }

// ── MAM ──────────────────────────────────────────────────────────────

type MamQueryRequested struct {
	QueryID string
	After   string // empty means absent
	Before  string // empty means absent
	Max     uint32
}

func (MamQueryRequested) payloadKind() string { return "mam_query_requested" }

type MamResultReceived struct {
	QueryID  string
	Messages []ChatMessage
	Complete bool
}

func (MamResultReceived) payloadKind() string { return "mam_result_received" }

type MamFinReceived struct {
	QueryID  string
	IqID     string
	Complete bool
	LastID   string // empty means absent
}

func (MamFinReceived) payloadKind() string { return "mam_fin_received" }

// ── Debug ────────────────────────────────────────────────────────────

type RawStanzaReceived struct{ Stanza string }

func (RawStanzaReceived) payloadKind() string { return "raw_stanza_received" }

type RawStanzaSent struct{ Stanza string }

func (RawStanzaSent) payloadKind() string { return "raw_stanza_sent" }

// ── UI ───────────────────────────────────────────────────────────────

type ConversationOpened struct{ JID string }

func (ConversationOpened) payloadKind() string { return "conversation_opened" }

type ConversationClosed struct{ JID string }

func (ConversationClosed) payloadKind() string { return "conversation_closed" }

type ScrollRequested struct {
	JID       string
	Direction ScrollDirection
}

func (ScrollRequested) payloadKind() string { return "scroll_requested" }

type ComposeStarted struct{ JID string }

func (ComposeStarted) payloadKind() string { return "compose_started" }

type SearchRequested struct{ Query string }

func (SearchRequested) payloadKind() string { return "search_requested" }

type ThemeChanged struct{ ThemeID string }

func (ThemeChanged) payloadKind() string { return "theme_changed" }

type NotificationClicked struct{ EventID string }

func (NotificationClicked) payloadKind() string { return "notification_clicked" }

// ── Plugins (data-only; sandboxing/execution is out of scope) ──────

type PluginLoaded struct {
	PluginID string
	Version  string
}

func (PluginLoaded) payloadKind() string { return "plugin_loaded" }

type PluginUnloaded struct{ PluginID string }

func (PluginUnloaded) payloadKind() string { return "plugin_unloaded" }

type PluginError struct {
	PluginID string
	Error    string
}

func (PluginError) payloadKind() string { return "plugin_error" }
