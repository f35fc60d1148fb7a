package events

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// VERSION of Sandwich-Gateway, following Semantic Versioning.
const VERSION = "0.1"

// GatewayVersion is the gateway protocol version spoken by this library.
const GatewayVersion = "9"

// Gateway opcodes.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpPresenceUpdate      = 3
	OpVoiceStateUpdate    = 4
	OpResume              = 6
	OpReconnect           = 7
	OpRequestGuildMembers = 8
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatACK        = 11
)

// Gateway close codes. Codes in the 4004/4013/4014 set cannot be recovered
// by reconnecting and terminate the shard.
const (
	CloseAuthenticationFailed = 4004
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014

	// CloseResumeShard is the code we close with when the session should
	// remain valid for a later RESUME.
	CloseResumeShard = 4000
)

// FatalCloseCode returns true when a close code cannot be recovered from
// by reconnecting or resuming.
func FatalCloseCode(code int) bool {
	switch code {
	case CloseAuthenticationFailed, CloseInvalidIntents, CloseDisallowedIntents:
		return true
	}

	return false
}
