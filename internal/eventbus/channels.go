package eventbus

// Well-known channel names, grouped by direction as in spec.md §6. Managers
// publish/subscribe using these constants rather than ad hoc literals.
var (
	ChConnectionEstablished  = MustChannel("system.connection.established")
	ChConnectionLost         = MustChannel("system.connection.lost")
	ChConnectionReconnecting = MustChannel("system.connection.reconnecting")
	ChErrorOccurred          = MustChannel("system.error.occurred")
	ChGoingOffline           = MustChannel("system.going.offline")
	ChComingOnline           = MustChannel("system.coming.online")
	ChSyncStarted            = MustChannel("system.sync.started")
	ChSyncCompleted          = MustChannel("system.sync.completed")
	ChStartupComplete        = MustChannel("system.startup.complete")
	ChShutdownRequested      = MustChannel("system.shutdown.requested")
	ChConfigReloaded         = MustChannel("system.config.reloaded")

	ChRosterFetch = MustChannel("ui.roster.fetch")
	ChRosterAdd   = MustChannel("ui.roster.add")
	ChPresenceSet = MustChannel("ui.presence.set")
	ChMessageSend = MustChannel("ui.message.send")
	ChMucJoin     = MustChannel("ui.muc.join")
	ChMucSend     = MustChannel("ui.muc.send")
	ChChatStateSend = MustChannel("ui.chatstate.send")
	ChMamQuery      = MustChannel("ui.mam.query")
	ChScroll        = MustChannel("ui.scroll")

	ChRosterReceived       = MustChannel("xmpp.roster.received")
	ChRosterUpdated        = MustChannel("xmpp.roster.updated")
	ChRosterRemoved        = MustChannel("xmpp.roster.removed")
	ChPresenceChanged      = MustChannel("xmpp.presence.changed")
	ChOwnPresenceChanged   = MustChannel("xmpp.presence.own_changed")
	ChMessageReceived      = MustChannel("xmpp.message.received")
	ChMessageSent          = MustChannel("xmpp.message.sent")
	ChMessageDelivered     = MustChannel("xmpp.message.delivered")
	ChChatStateReceived    = MustChannel("xmpp.chatstate.received")
	ChMucJoined            = MustChannel("xmpp.muc.joined")
	ChMucLeft              = MustChannel("xmpp.muc.left")
	ChMucOccupantChanged   = MustChannel("xmpp.muc.occupant.changed")
	ChMucSubjectChanged    = MustChannel("xmpp.muc.subject.changed")
	ChMucMessageReceived   = MustChannel("xmpp.muc.message.received")
	ChMamResultReceived    = MustChannel("xmpp.mam.result.received")
	ChMamFinReceived       = MustChannel("xmpp.mam.fin.received")

	ChDebugStanzaIn  = MustChannel("xmpp.debug.stanza.in")
	ChDebugStanzaOut = MustChannel("xmpp.debug.stanza.out")
)
