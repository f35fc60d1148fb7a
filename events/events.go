package events

import (
	stdjson "encoding/json"
	"time"
)

// ReceivedPayload is the barebones structure for all frames received from
// the gateway.
type ReceivedPayload struct {
	Op       int                `json:"op" msgpack:"op"`
	Sequence int64              `json:"s,omitempty" msgpack:"s,omitempty"`
	Type     string             `json:"t,omitempty" msgpack:"t,omitempty"`
	Data     stdjson.RawMessage `json:"d,omitempty" msgpack:"-"`
}

// SentPayload is the structure for all frames sent to the gateway.
type SentPayload struct {
	Op   int         `json:"op"`
	Data interface{} `json:"d"`
}

// StreamEvent provides the struct for events that are sent over STAN/NATS.
type StreamEvent struct {
	Type string      `msgpack:"i"`
	Data interface{} `msgpack:"d"`
}

// Hello is the data for the HELLO frame sent on every new connection.
type Hello struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
}

// Heartbeat is sent on an interval and carries the last dispatch sequence.
type Heartbeat struct {
	Op   int   `json:"op"`
	Data int64 `json:"d"`
}

// Identify is the data sent when starting a new session.
type Identify struct {
	Op   int          `json:"op"`
	Data IdentifyData `json:"d"`
}

// IdentifyData is the inner payload of an IDENTIFY frame. Properties is
// either IdentifyProperties or ClientProperties depending on whether the
// connection masquerades as a bot or a desktop client.
type IdentifyData struct {
	Token          string               `json:"token"`
	Properties     interface{}          `json:"properties"`
	Compress       bool                 `json:"compress"`
	LargeThreshold int                  `json:"large_threshold,omitempty"`
	Shard          *[2]int              `json:"shard,omitempty"`
	Presence       *UpdateStatusData    `json:"presence,omitempty"`
	Intents        *int                 `json:"intents,omitempty"`
	Capabilities   int                  `json:"capabilities,omitempty"`
	ClientState    *IdentifyClientState `json:"client_state,omitempty"`
}

// IdentifyProperties is the bot flavour of connection properties.
type IdentifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// ClientProperties is the desktop client flavour of connection properties.
type ClientProperties struct {
	OS                string `json:"os"`
	Browser           string `json:"browser"`
	ReleaseChannel    string `json:"release_channel"`
	ClientVersion     string `json:"client_version"`
	OSVersion         string `json:"os_version"`
	OSArch            string `json:"os_arch"`
	SystemLocale      string `json:"system_locale"`
	ClientBuildNumber int    `json:"client_build_number"`
	ClientEventSource string `json:"client_event_source,omitempty"`
}

// IdentifyClientState mirrors the state a desktop client reports when
// identifying. Only used with ClientProperties.
type IdentifyClientState struct {
	GuildHashes              map[string]string `json:"guild_hashes"`
	HighestLastMessageID     string            `json:"highest_last_message_id"`
	ReadStateVersion         int               `json:"read_state_version"`
	UserGuildSettingsVersion int               `json:"user_guild_settings_version"`
}

// DefaultClientProperties returns properties matching a stable desktop
// client build.
func DefaultClientProperties() ClientProperties {
	return ClientProperties{
		OS:                "Mac OS X",
		Browser:           "Discord Client",
		ReleaseChannel:    "stable",
		ClientVersion:     "1.0.9001",
		OSVersion:         "10.0.19042",
		OSArch:            "x64",
		SystemLocale:      "en-US",
		ClientBuildNumber: 84941,
	}
}

// DefaultClientState returns the client state a fresh desktop client
// reports.
func DefaultClientState() *IdentifyClientState {
	return &IdentifyClientState{
		GuildHashes:              map[string]string{},
		HighestLastMessageID:     "0",
		ReadStateVersion:         0,
		UserGuildSettingsVersion: -1,
	}
}

// Resume is the packet sent to replay missed events on a reopened
// connection.
type Resume struct {
	Op   int        `json:"op"`
	Data ResumeData `json:"d"`
}

// ResumeData is the inner payload of a RESUME frame.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// RequestGuildMembersData is sent to the gateway when requesting guild
// members. The gateway responds with GUILD_MEMBERS_CHUNK events.
type RequestGuildMembersData struct {
	GuildID string `json:"guild_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}

// UpdateStatusData is sent to update the connection's presence.
type UpdateStatusData struct {
	IdleSince  *int       `json:"since"`
	Game       *Activity  `json:"game,omitempty"`
	Activities []Activity `json:"activities,omitempty"`
	AFK        bool       `json:"afk"`
	Status     string     `json:"status"`
}

// Activity is a single presence activity.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Ready stores the data for the READY dispatch. The gateway has two shapes
// for this payload; the richer desktop client variant carries users,
// merged_members and read_state which are simply absent for bots, so both
// decode into this struct. Only SessionID is load bearing for the library.
type Ready struct {
	Version         int                 `json:"v"`
	SessionID       string              `json:"session_id"`
	User            *User               `json:"user"`
	Shard           *[2]int             `json:"shard,omitempty"`
	Guilds          []*UnavailableGuild `json:"guilds,omitempty"`
	PrivateChannels stdjson.RawMessage  `json:"private_channels,omitempty"`
	Users           []*User             `json:"users,omitempty"`
	MergedMembers   [][]*PartialMember  `json:"merged_members,omitempty"`
	ReadState       *ReadStateWrapper   `json:"read_state,omitempty"`
}

// Resumed is the data for the RESUMED dispatch.
type Resumed struct {
	Trace []string `json:"_trace"`
}

// ReadState is the last read message id and mention count in a channel.
type ReadState struct {
	ID            string `json:"id"`
	LastMessageID string `json:"last_message_id"`
	MentionCount  *int   `json:"mention_count,omitempty"`
}

// ReadStateWrapper wraps the read state entries on the rich READY shape.
type ReadStateWrapper struct {
	Version int         `json:"version"`
	Partial bool        `json:"partial"`
	Entries []ReadState `json:"entries"`
}

// User is the subset of a user object the library itself needs.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Bot           bool   `json:"bot,omitempty"`
}

// PartialMember is a guild member without the user object attached.
type PartialMember struct {
	Nick     string   `json:"nick,omitempty"`
	Roles    []string `json:"roles"`
	JoinedAt string   `json:"joined_at"`
	Deaf     bool     `json:"deaf"`
	Mute     bool     `json:"mute"`
}

// UnavailableGuild is the stub guild object carried on READY.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

// Gateway is the response of GET /gateway.
type Gateway struct {
	URL string `json:"url"`
}

// GatewayBot is the response of GET /gateway/bot and includes the
// recommended shard count and remaining session starts.
type GatewayBot struct {
	URL          string `json:"url"`
	Shards       int    `json:"shards"`
	SessionLimit struct {
		Total      int `json:"total"`
		Remaining  int `json:"remaining"`
		ResetAfter int `json:"reset_after"`
	} `json:"session_start_limit"`
}

// Event is anything that can be fanned out to listeners: dispatch frames
// from the gateway and shard lifecycle notifications from the library.
type Event interface {
	Kind() EventTypeFlags
}

// Dispatch is an op 0 frame received from the gateway. Data stays raw so
// consumers decode only the events they care about.
type Dispatch struct {
	ShardID  int
	Type     string
	Sequence int64
	Flag     EventTypeFlags
	Data     stdjson.RawMessage
}

// Kind implements Event.
func (e *Dispatch) Kind() EventTypeFlags { return e.Flag }

// ShardConnecting is emitted when a shard starts connecting to the gateway.
type ShardConnecting struct {
	ShardID int
	Gateway string
}

// Kind implements Event.
func (e ShardConnecting) Kind() EventTypeFlags { return EventTypeShardConnecting }

// ShardIdentifying is emitted when a shard sends IDENTIFY.
type ShardIdentifying struct {
	ShardID int
}

// Kind implements Event.
func (e ShardIdentifying) Kind() EventTypeFlags { return EventTypeShardIdentifying }

// ShardResuming is emitted when a shard attempts to resume a session.
type ShardResuming struct {
	ShardID  int
	Sequence int64
}

// Kind implements Event.
func (e ShardResuming) Kind() EventTypeFlags { return EventTypeShardResuming }

// ShardReconnecting is emitted when a shard begins its reconnect backoff.
type ShardReconnecting struct {
	ShardID int
	Wait    time.Duration
}

// Kind implements Event.
func (e ShardReconnecting) Kind() EventTypeFlags { return EventTypeShardReconnecting }

// ShardConnected is emitted once a shard reaches the connected stage,
// either through READY or RESUMED.
type ShardConnected struct {
	ShardID int
}

// Kind implements Event.
func (e ShardConnected) Kind() EventTypeFlags { return EventTypeShardConnected }

// ShardDisconnected is emitted whenever a shard's connection ends.
type ShardDisconnected struct {
	ShardID int
	Code    int
	Reason  string
}

// Kind implements Event.
func (e ShardDisconnected) Kind() EventTypeFlags { return EventTypeShardDisconnected }

// ShardPayload carries the raw bytes of a dispatch frame for listeners that
// opted into the payload stream.
type ShardPayload struct {
	ShardID int
	Data    []byte
}

// Kind implements Event.
func (e ShardPayload) Kind() EventTypeFlags { return EventTypeShardPayload }
