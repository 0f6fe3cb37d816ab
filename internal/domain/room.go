package domain

type (
	RoomName  string
	RoomID    string
	ChannelID string
)

const MaxRoomNameLen = 36

type ChannelKind string

const (
	ChannelText  ChannelKind = "text"
	ChannelVoice ChannelKind = "voice"
)

func (k ChannelKind) Valid() bool {
	return k == ChannelText || k == ChannelVoice
}

// Channel is a named sub-scope of a room. Text channel logs live outside the relay.
type Channel struct {
	ID   ChannelID   `json:"id"`
	Name string      `json:"name"`
	Kind ChannelKind `json:"kind"`
	// Declared is false for voice channels created implicitly by a voice join.
	Declared bool `json:"declared"`
}

type Room struct {
	ID       RoomID    `json:"id"`
	Name     RoomName  `json:"name"`
	Owner    UserID    `json:"owner"`
	Channels []Channel `json:"channels"`
}

// Clone returns a copy that does not share the channel slice.
func (r Room) Clone() Room {
	out := r
	out.Channels = append([]Channel(nil), r.Channels...)
	return out
}
