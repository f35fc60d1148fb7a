package events

// EventTypeFlags is a bitset over the event types a listener may subscribe
// to. Dispatch events map one flag per gateway event name; the remaining
// flags cover shard lifecycle events produced by the library itself.
type EventTypeFlags uint64

const (
	EventTypeReady EventTypeFlags = 1 << iota
	EventTypeResumed
	EventTypeChannelCreate
	EventTypeChannelUpdate
	EventTypeChannelDelete
	EventTypeChannelPinsUpdate
	EventTypeGuildCreate
	EventTypeGuildUpdate
	EventTypeGuildDelete
	EventTypeGuildBanAdd
	EventTypeGuildBanRemove
	EventTypeGuildEmojisUpdate
	EventTypeGuildIntegrationsUpdate
	EventTypeGuildMemberAdd
	EventTypeGuildMemberRemove
	EventTypeGuildMemberUpdate
	EventTypeGuildMembersChunk
	EventTypeGuildRoleCreate
	EventTypeGuildRoleUpdate
	EventTypeGuildRoleDelete
	EventTypeInviteCreate
	EventTypeInviteDelete
	EventTypeMessageCreate
	EventTypeMessageUpdate
	EventTypeMessageDelete
	EventTypeMessageDeleteBulk
	EventTypeMessageReactionAdd
	EventTypeMessageReactionRemove
	EventTypeMessageReactionRemoveAll
	EventTypeMessageReactionRemoveEmoji
	EventTypeMessageAck
	EventTypePresenceUpdate
	EventTypePresencesReplace
	EventTypeTypingStart
	EventTypeUserUpdate
	EventTypeVoiceStateUpdate
	EventTypeVoiceServerUpdate
	EventTypeWebhooksUpdate
	EventTypeGiftCodeUpdate
	EventTypeMemberListUpdate

	EventTypeShardConnecting
	EventTypeShardIdentifying
	EventTypeShardResuming
	EventTypeShardReconnecting
	EventTypeShardConnected
	EventTypeShardDisconnected
	EventTypeShardPayload
)

// EventTypeAll subscribes to every event the library can produce except the
// raw payload stream, which is opt-in.
const EventTypeAll = ^EventTypeFlags(0) &^ EventTypeShardPayload

// EventTypeNone subscribes to nothing. Legal, if a little pointless.
const EventTypeNone = EventTypeFlags(0)

var eventTypes = map[string]EventTypeFlags{
	"READY":                         EventTypeReady,
	"RESUMED":                       EventTypeResumed,
	"CHANNEL_CREATE":                EventTypeChannelCreate,
	"CHANNEL_UPDATE":                EventTypeChannelUpdate,
	"CHANNEL_DELETE":                EventTypeChannelDelete,
	"CHANNEL_PINS_UPDATE":           EventTypeChannelPinsUpdate,
	"GUILD_CREATE":                  EventTypeGuildCreate,
	"GUILD_UPDATE":                  EventTypeGuildUpdate,
	"GUILD_DELETE":                  EventTypeGuildDelete,
	"GUILD_BAN_ADD":                 EventTypeGuildBanAdd,
	"GUILD_BAN_REMOVE":              EventTypeGuildBanRemove,
	"GUILD_EMOJIS_UPDATE":           EventTypeGuildEmojisUpdate,
	"GUILD_INTEGRATIONS_UPDATE":     EventTypeGuildIntegrationsUpdate,
	"GUILD_MEMBER_ADD":              EventTypeGuildMemberAdd,
	"GUILD_MEMBER_REMOVE":           EventTypeGuildMemberRemove,
	"GUILD_MEMBER_UPDATE":           EventTypeGuildMemberUpdate,
	"GUILD_MEMBERS_CHUNK":           EventTypeGuildMembersChunk,
	"GUILD_ROLE_CREATE":             EventTypeGuildRoleCreate,
	"GUILD_ROLE_UPDATE":             EventTypeGuildRoleUpdate,
	"GUILD_ROLE_DELETE":             EventTypeGuildRoleDelete,
	"INVITE_CREATE":                 EventTypeInviteCreate,
	"INVITE_DELETE":                 EventTypeInviteDelete,
	"MESSAGE_CREATE":                EventTypeMessageCreate,
	"MESSAGE_UPDATE":                EventTypeMessageUpdate,
	"MESSAGE_DELETE":                EventTypeMessageDelete,
	"MESSAGE_DELETE_BULK":           EventTypeMessageDeleteBulk,
	"MESSAGE_REACTION_ADD":          EventTypeMessageReactionAdd,
	"MESSAGE_REACTION_REMOVE":       EventTypeMessageReactionRemove,
	"MESSAGE_REACTION_REMOVE_ALL":   EventTypeMessageReactionRemoveAll,
	"MESSAGE_REACTION_REMOVE_EMOJI": EventTypeMessageReactionRemoveEmoji,
	"MESSAGE_ACK":                   EventTypeMessageAck,
	"PRESENCE_UPDATE":               EventTypePresenceUpdate,
	"PRESENCES_REPLACE":             EventTypePresencesReplace,
	"TYPING_START":                  EventTypeTypingStart,
	"USER_UPDATE":                   EventTypeUserUpdate,
	"VOICE_STATE_UPDATE":            EventTypeVoiceStateUpdate,
	"VOICE_SERVER_UPDATE":           EventTypeVoiceServerUpdate,
	"WEBHOOKS_UPDATE":               EventTypeWebhooksUpdate,
	"GIFT_CODE_UPDATE":              EventTypeGiftCodeUpdate,
	"MEMBER_LIST_UPDATE":            EventTypeMemberListUpdate,
}

// EventTypeOf resolves a gateway event name to its flag. ok is false for
// event names the library does not know about.
func EventTypeOf(name string) (flag EventTypeFlags, ok bool) {
	flag, ok = eventTypes[name]
	return
}

// Contains reports whether any flag in other is present in f.
func (f EventTypeFlags) Contains(other EventTypeFlags) bool {
	return f&other != 0
}
