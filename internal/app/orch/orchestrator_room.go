package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) renameIfSet(id domain.ConnID, name string) error {
	if name == "" {
		return nil
	}
	_, err := o.Registry.Rename(id, name)
	return err
}

func (o *Orchestrator) createRoom(id domain.ConnID, m core.CreateRoom) error {
	if len(m.Name) > domain.MaxRoomNameLen {
		return domain.ErrRoomNameTooLong
	}
	if err := o.renameIfSet(id, m.DisplayName); err != nil {
		return err
	}
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID != "" {
		if err := o.leaveRoom(id, false); err != nil {
			return err
		}
	}

	room, err := o.Rooms.CreateRoom(id, domain.RoomName(m.Name))
	if err != nil {
		return err
	}
	o.Registry.SetRoom(id, room.ID)
	o.Metrics.Inc(metrics.RoomsCreated)
	log.Info().Str("module", "orch").Str("cid", string(id)).Str("room", string(room.ID)).Msg("room created")

	o.Router.Send(id, core.RoomCreatedMsg{
		Type:     core.TypeRoomCreated,
		RoomID:   room.ID,
		Name:     room.Name,
		Channels: room.Channels,
	})
	return nil
}

func (o *Orchestrator) joinRoom(id domain.ConnID, m core.JoinRoom) error {
	if err := o.renameIfSet(id, m.DisplayName); err != nil {
		return err
	}
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID != "" && conn.RoomID != m.RoomID {
		// A mistyped target must not cost the current room.
		if _, ok := o.Rooms.Room(m.RoomID); !ok {
			o.Router.Send(id, core.RoomNotFoundMsg{Type: core.TypeRoomNotFound, RoomID: m.RoomID})
			return nil
		}
		if err := o.leaveRoom(id, false); err != nil {
			return err
		}
	}
	rejoin := conn.RoomID == m.RoomID

	_, _, err = o.Rooms.JoinRoom(m.RoomID, id, func(room domain.Room, others []domain.ConnID) {
		o.Registry.SetRoom(id, room.ID)
		o.Router.Send(id, core.CurrentMembersMsg{
			Type:     core.TypeCurrentMembers,
			RoomID:   room.ID,
			Name:     room.Name,
			Owner:    room.Owner,
			Members:  o.Registry.Members(others),
			Channels: room.Channels,
		})
		if rejoin {
			return
		}
		self, err := o.Registry.Lookup(id)
		if err != nil {
			return
		}
		o.Router.Fanout(others, core.PresenceJoinedMsg{
			Type:   core.TypePresenceJoined,
			RoomID: room.ID,
			Member: self.Member(),
		})
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		if rejoin {
			o.Registry.ClearRoom(id, m.RoomID)
		}
		o.Router.Send(id, core.RoomNotFoundMsg{Type: core.TypeRoomNotFound, RoomID: m.RoomID})
		return nil
	}
	return err
}

// leaveRoom removes the connection from its current room. On disconnect the
// remaining members get user-left; on an explicit leave they get presence-left
// and the requester gets a confirmation.
func (o *Orchestrator) leaveRoom(id domain.ConnID, disconnect bool) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID == "" {
		if !disconnect {
			return fmt.Errorf("leave room: %w", domain.ErrNotInRoom)
		}
		return nil
	}
	if conn.VoiceChannelID != "" {
		if err := o.leaveVoice(id, disconnect); err != nil {
			if !disconnect {
				return err
			}
			log.Error().Err(err).Str("module", "orch").Str("cid", string(id)).Msg("voice cleanup on disconnect")
		}
	}

	roomID := conn.RoomID
	res, err := o.Rooms.LeaveRoom(roomID, id, func(res app.LeaveResult) {
		o.Registry.SetRoom(id, "")
		if res.VoiceChannel != "" {
			o.Router.Fanout(res.VoiceRemaining, core.UserLeftMsg{
				Type:         core.TypeUserLeft,
				ConnectionID: id,
				Scope:        core.ScopeVoice,
				ChannelID:    res.VoiceChannel,
			})
			if res.VoiceChannelRemoved {
				o.channelRemoved(res.Remaining, roomID, res.VoiceChannel)
			}
		}
		if disconnect {
			o.Router.Fanout(res.Remaining, core.UserLeftMsg{
				Type:         core.TypeUserLeft,
				ConnectionID: id,
				Scope:        core.ScopeRoom,
				RoomID:       roomID,
			})
			return
		}
		o.Router.Fanout(res.Remaining, core.PresenceLeftMsg{
			Type:         core.TypePresenceLeft,
			RoomID:       roomID,
			ConnectionID: id,
		})
	})
	switch {
	case err == nil:
		if res.RoomRemoved {
			o.Metrics.Inc(metrics.RoomsRemoved)
		}
	case errors.Is(err, domain.ErrRoomNotFound):
		// Deleted by its owner in the meantime.
		o.Registry.ClearRoom(id, roomID)
	case errors.Is(err, domain.ErrNotInRoom):
		o.Registry.ClearRoom(id, roomID)
		return fmt.Errorf("registry has %s in room %s: %w", id, roomID, domain.ErrInconsistentState)
	default:
		return err
	}
	if !disconnect {
		o.Router.Send(id, core.LeftMsg{Type: core.TypeLeft, RoomID: roomID})
	}
	return nil
}

func (o *Orchestrator) deleteRoom(id domain.ConnID) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID == "" {
		return fmt.Errorf("delete room: %w", domain.ErrNotInRoom)
	}
	roomID := conn.RoomID
	_, err = o.Rooms.DeleteRoom(roomID, id, func(members []domain.ConnID) {
		for _, m := range members {
			o.Registry.ClearRoom(m, roomID)
		}
		o.Router.Fanout(members, core.RoomDeletedMsg{Type: core.TypeRoomDeleted, RoomID: roomID})
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		o.Registry.ClearRoom(id, roomID)
		o.Router.Send(id, core.RoomNotFoundMsg{Type: core.TypeRoomNotFound, RoomID: roomID})
		return nil
	}
	if err == nil {
		o.Metrics.Inc(metrics.RoomsRemoved)
		log.Info().Str("module", "orch").Str("cid", string(id)).Str("room", string(roomID)).Msg("room deleted by owner")
	}
	return err
}

func (o *Orchestrator) createChannel(id domain.ConnID, m core.CreateChannel) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID == "" {
		return fmt.Errorf("create channel: %w", domain.ErrNotInRoom)
	}
	_, err = o.Rooms.AddChannel(conn.RoomID, id, m.Name, m.Kind, func(ch domain.Channel, members []domain.ConnID) {
		o.Router.Fanout(members, core.ChannelCreatedMsg{
			Type:    core.TypeChannelCreated,
			RoomID:  conn.RoomID,
			Channel: ch,
		})
	})
	return err
}
