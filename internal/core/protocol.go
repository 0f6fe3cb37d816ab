package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicehub/internal/domain"
)

var (
	ErrBadPayload  = errors.New("bad payload")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound type tags.
const (
	TypeCreateRoom    = "create-room"
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypeDeleteRoom    = "delete-room"
	TypeCreateChannel = "create-channel"
	TypeJoinVoice     = "join-voice"
	TypeLeaveVoice    = "leave-voice"
	TypeSignalOffer   = "signal-offer"
	TypeSignalAnswer  = "signal-answer"
	TypeSignalICE     = "signal-ice"
	TypeChatMessage   = "chat-message"
	TypeScreenShare   = "screen-share"
	TypeRename        = "rename"
	TypeWhoAmI        = "whoami"
	TypePing          = "ping"
)

// SignalKind is the outbound name of a relayed handshake message.
type SignalKind string

const (
	KindOffer        SignalKind = "offer"
	KindAnswer       SignalKind = "answer"
	KindICECandidate SignalKind = "ice-candidate"
)

// Inbound is the closed set of client->server messages.
type Inbound interface {
	inbound()
}

type (
	CreateRoom struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName,omitempty"`
	}
	JoinRoom struct {
		RoomID      domain.RoomID `json:"roomId"`
		DisplayName string        `json:"displayName,omitempty"`
	}
	LeaveRoom     struct{}
	DeleteRoom    struct{}
	CreateChannel struct {
		Name string             `json:"name"`
		Kind domain.ChannelKind `json:"kind"`
	}
	JoinVoice struct {
		ChannelID domain.ChannelID `json:"channelId"`
	}
	LeaveVoice struct{}
	Signal     struct {
		Kind    SignalKind      `json:"-"`
		Target  domain.ConnID   `json:"targetId"`
		Payload json.RawMessage `json:"payload"`
	}
	ChatMessage struct {
		RoomID domain.RoomID `json:"roomId"`
		Text   string        `json:"text"`
	}
	ScreenShare struct {
		Active bool `json:"active"`
	}
	Rename struct {
		Name string `json:"name"`
	}
	WhoAmI struct{}
	Ping   struct{}
)

func (CreateRoom) inbound()    {}
func (JoinRoom) inbound()      {}
func (LeaveRoom) inbound()     {}
func (DeleteRoom) inbound()    {}
func (CreateChannel) inbound() {}
func (JoinVoice) inbound()     {}
func (LeaveVoice) inbound()    {}
func (Signal) inbound()        {}
func (ChatMessage) inbound()   {}
func (ScreenShare) inbound()   {}
func (Rename) inbound()        {}
func (WhoAmI) inbound()        {}
func (Ping) inbound()          {}

// Decode parses one client frame into its Inbound variant.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch env.Type {
	case TypeCreateRoom:
		return decodeAs[CreateRoom](data)
	case TypeJoinRoom:
		return decodeAs[JoinRoom](data)
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	case TypeDeleteRoom:
		return DeleteRoom{}, nil
	case TypeCreateChannel:
		return decodeAs[CreateChannel](data)
	case TypeJoinVoice:
		return decodeAs[JoinVoice](data)
	case TypeLeaveVoice:
		return LeaveVoice{}, nil
	case TypeSignalOffer:
		return decodeSignal(data, KindOffer)
	case TypeSignalAnswer:
		return decodeSignal(data, KindAnswer)
	case TypeSignalICE:
		return decodeSignal(data, KindICECandidate)
	case TypeChatMessage:
		return decodeAs[ChatMessage](data)
	case TypeScreenShare:
		return decodeAs[ScreenShare](data)
	case TypeRename:
		return decodeAs[Rename](data)
	case TypeWhoAmI:
		return WhoAmI{}, nil
	case TypePing:
		return Ping{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if v, ok := any(m).(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	return m, nil
}

func decodeSignal(data []byte, kind SignalKind) (Inbound, error) {
	m, err := decodeAs[Signal](data)
	if err != nil {
		return nil, err
	}
	sig := m.(Signal)
	sig.Kind = kind
	return sig, nil
}

func (m JoinRoom) validate() error {
	if m.RoomID == "" {
		return errors.New("missing roomId")
	}
	return nil
}

func (m CreateChannel) validate() error {
	if m.Name == "" || !m.Kind.Valid() {
		return errors.New("channel needs name and kind")
	}
	return nil
}

func (m JoinVoice) validate() error {
	if m.ChannelID == "" {
		return errors.New("missing channelId")
	}
	return nil
}

func (m Signal) validate() error {
	if m.Target == "" {
		return errors.New("missing targetId")
	}
	return nil
}

func (m ChatMessage) validate() error {
	if m.RoomID == "" || m.Text == "" {
		return errors.New("chat needs roomId and text")
	}
	return nil
}

func (m Rename) validate() error {
	if m.Name == "" {
		return errors.New("empty name")
	}
	return nil
}
