package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/voicehub/internal/domain"
)

// Outbound type tags.
const (
	TypeRoomCreated    = "room-created"
	TypeCurrentMembers = "current-members"
	TypeRoomNotFound   = "room-not-found"
	TypePresenceJoined = "presence-joined"
	TypePresenceLeft   = "presence-left"
	TypeLeft           = "left"
	TypeRoomDeleted    = "room-deleted"
	TypeChannelCreated = "channel-created"
	TypeChannelRemoved = "channel-removed"
	TypeVoiceJoined    = "voice-joined"
	TypeVoiceMembers   = "voice-members"
	TypeVoiceLeft      = "voice-left"
	TypeInitiateOffer  = "initiate-offer"
	TypeNewMessage     = "new-message"
	TypeUserLeft       = "user-left"
	TypeMemberUpdated  = "member-updated"
	TypeWhoAmIReply    = "whoami"
	TypePong           = "pong"
	TypeError          = "error"
)

// Scopes carried by user-left.
const (
	ScopeRoom  = "room"
	ScopeVoice = "voice"
)

// Error codes carried by error replies.
const (
	CodeBadPayload      = "bad-payload"
	CodeUnknownType     = "unknown-type"
	CodeNotInRoom       = "not-in-room"
	CodeNotInVoice      = "not-in-voice"
	CodeNotOwner        = "not-owner"
	CodeNotVoiceChannel = "not-voice-channel"
	CodeInvalidName     = "invalid-name"
	CodeRateLimited     = "rate-limited"
	CodeInternal        = "internal"
)

type RoomCreatedMsg struct {
	Type     string           `json:"type"`
	RoomID   domain.RoomID    `json:"roomId"`
	Name     domain.RoomName  `json:"name"`
	Channels []domain.Channel `json:"channels"`
}

type CurrentMembersMsg struct {
	Type     string           `json:"type"`
	RoomID   domain.RoomID    `json:"roomId"`
	Name     domain.RoomName  `json:"name"`
	Owner    domain.UserID    `json:"owner"`
	Members  []domain.Member  `json:"members"`
	Channels []domain.Channel `json:"channels"`
}

type RoomNotFoundMsg struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type PresenceJoinedMsg struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Member domain.Member `json:"member"`
}

type PresenceLeftMsg struct {
	Type         string        `json:"type"`
	RoomID       domain.RoomID `json:"roomId"`
	ConnectionID domain.ConnID `json:"connectionId"`
}

type LeftMsg struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type RoomDeletedMsg struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type ChannelCreatedMsg struct {
	Type    string         `json:"type"`
	RoomID  domain.RoomID  `json:"roomId"`
	Channel domain.Channel `json:"channel"`
}

type ChannelRemovedMsg struct {
	Type      string           `json:"type"`
	RoomID    domain.RoomID    `json:"roomId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type VoiceJoinedMsg struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Member    domain.Member    `json:"member"`
}

// VoiceMembersMsg tells a voice joiner who was already present.
type VoiceMembersMsg struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Name      string           `json:"name"`
	Members   []domain.Member  `json:"members"`
}

type VoiceLeftMsg struct {
	Type         string           `json:"type"`
	ChannelID    domain.ChannelID `json:"channelId"`
	ConnectionID domain.ConnID    `json:"connectionId"`
}

// InitiateOfferMsg instructs the receiver to send an offer toward Target.
type InitiateOfferMsg struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Target    domain.ConnID    `json:"targetId"`
}

// SignalOut is a relayed handshake payload; Payload is forwarded verbatim.
type SignalOut struct {
	Type    SignalKind      `json:"type"`
	Sender  domain.ConnID   `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

type NewMessageMsg struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	RoomID     domain.RoomID `json:"roomId"`
	Sender     domain.ConnID `json:"sender"`
	SenderName string        `json:"senderName"`
	Text       string        `json:"text"`
	Timestamp  time.Time     `json:"timestamp"`
}

type ScreenShareMsg struct {
	Type   string        `json:"type"`
	Sender domain.ConnID `json:"sender"`
	Active bool          `json:"active"`
}

// UserLeftMsg is emitted once per affected scope when a connection drops.
type UserLeftMsg struct {
	Type         string           `json:"type"`
	ConnectionID domain.ConnID    `json:"connectionId"`
	Scope        string           `json:"scope"`
	RoomID       domain.RoomID    `json:"roomId,omitempty"`
	ChannelID    domain.ChannelID `json:"channelId,omitempty"`
}

type MemberUpdatedMsg struct {
	Type   string        `json:"type"`
	Member domain.Member `json:"member"`
}

type WhoAmIMsg struct {
	Type           string           `json:"type"`
	ConnectionID   domain.ConnID    `json:"connectionId"`
	UserID         domain.UserID    `json:"userId"`
	Username       string           `json:"username"`
	RoomID         domain.RoomID    `json:"roomId,omitempty"`
	VoiceChannelID domain.ChannelID `json:"voiceChannelId,omitempty"`
}

type PongMsg struct {
	Type string `json:"type"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}
