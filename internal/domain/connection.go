package domain

// ConnID identifies one live client session. Assigned at connect time, never reused.
type ConnID string

type SessionState int

const (
	StateConnected SessionState = iota
	StateInRoom
	StateInVoice
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateInVoice:
		return "in_voice"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Connection is the registry-owned metadata of a session.
// Other components hold only its ID.
type Connection struct {
	ID             ConnID       `json:"id"`
	User           User         `json:"user"`
	RoomID         RoomID       `json:"room_id,omitempty"`
	VoiceChannelID ChannelID    `json:"voice_channel_id,omitempty"`
	State          SessionState `json:"-"`
}

// Member is a read-only view of a connection for presence lists.
type Member struct {
	ID       ConnID `json:"id"`
	UserID   UserID `json:"userId"`
	Username string `json:"username"`
}

func (c Connection) Member() Member {
	return Member{ID: c.ID, UserID: c.User.ID, Username: c.User.Username}
}
