package orch

import (
	"fmt"
	"time"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/google/uuid"
)

func (o *Orchestrator) chat(id domain.ConnID, m core.ChatMessage) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID != m.RoomID || !o.Rooms.IsMember(m.RoomID, id) {
		return fmt.Errorf("chat in %s: %w", m.RoomID, domain.ErrNotInRoom)
	}
	_, err = o.Router.RelayToRoom(id, m.RoomID, core.NewMessageMsg{
		Type:       core.TypeNewMessage,
		ID:         uuid.NewString(),
		RoomID:     m.RoomID,
		Sender:     id,
		SenderName: conn.User.Username,
		Text:       m.Text,
		Timestamp:  time.Now().UTC(),
	}, true)
	return err
}

func (o *Orchestrator) rename(id domain.ConnID, m core.Rename) error {
	conn, err := o.Registry.Rename(id, m.Name)
	if err != nil {
		return err
	}
	o.Router.Send(id, whoAmIMsg(conn))
	if conn.RoomID != "" {
		_, _ = o.Router.RelayToRoom(id, conn.RoomID, core.MemberUpdatedMsg{
			Type:   core.TypeMemberUpdated,
			Member: conn.Member(),
		}, true)
	}
	return nil
}

func (o *Orchestrator) whoAmI(id domain.ConnID) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	o.Router.Send(id, whoAmIMsg(conn))
	return nil
}

func whoAmIMsg(c domain.Connection) core.WhoAmIMsg {
	return core.WhoAmIMsg{
		Type:           core.TypeWhoAmIReply,
		ConnectionID:   c.ID,
		UserID:         c.User.ID,
		Username:       c.User.Username,
		RoomID:         c.RoomID,
		VoiceChannelID: c.VoiceChannelID,
	}
}
