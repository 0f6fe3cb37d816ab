package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/rs/zerolog/log"
)

// joinVoice puts the connection into a voice channel of its room. The joiner
// receives the current voice members and one initiate-offer per member, the
// members receive voice-joined.
func (o *Orchestrator) joinVoice(id domain.ConnID, m core.JoinVoice) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.RoomID == "" {
		return fmt.Errorf("join voice: %w", domain.ErrNotInRoom)
	}
	roomID := conn.RoomID

	_, err = o.Rooms.JoinVoice(roomID, m.ChannelID, id, func(j app.VoiceJoin) {
		o.Registry.SetVoiceChannel(id, j.Channel.ID)
		self, err := o.Registry.Lookup(id)
		if err != nil {
			return
		}
		if j.Left != "" {
			o.Router.Fanout(j.LeftRemaining, core.VoiceLeftMsg{
				Type:         core.TypeVoiceLeft,
				ChannelID:    j.Left,
				ConnectionID: id,
			})
		}
		if j.LeftRemoved {
			o.channelRemoved(append(j.Others, id), roomID, j.Left)
		}
		if j.Created {
			o.Router.Fanout(j.Others, core.ChannelCreatedMsg{
				Type:    core.TypeChannelCreated,
				RoomID:  roomID,
				Channel: j.Channel,
			})
		}

		o.Router.Send(id, core.VoiceMembersMsg{
			Type:      core.TypeVoiceMembers,
			ChannelID: j.Channel.ID,
			Name:      j.Channel.Name,
			Members:   o.Registry.Members(j.Existing),
		})
		if j.Already {
			return
		}
		o.Router.Fanout(j.Existing, core.VoiceJoinedMsg{
			Type:      core.TypeVoiceJoined,
			ChannelID: j.Channel.ID,
			Member:    self.Member(),
		})
		for _, peer := range j.Existing {
			o.Router.Send(id, core.InitiateOfferMsg{
				Type:      core.TypeInitiateOffer,
				ChannelID: j.Channel.ID,
				Target:    peer,
			})
		}
	})
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		o.Registry.ClearRoom(id, roomID)
		o.Router.Send(id, core.RoomNotFoundMsg{Type: core.TypeRoomNotFound, RoomID: roomID})
		return nil
	case errors.Is(err, domain.ErrNotInRoom):
		return fmt.Errorf("registry has %s in room %s: %w", id, roomID, domain.ErrInconsistentState)
	}
	return err
}

// leaveVoice drops the connection from its voice channel. Remaining members get
// user-left on disconnect and voice-left otherwise.
func (o *Orchestrator) leaveVoice(id domain.ConnID, disconnect bool) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.VoiceChannelID == "" {
		if disconnect {
			return nil
		}
		return fmt.Errorf("leave voice: %w", domain.ErrNotInVoice)
	}

	chID := conn.VoiceChannelID
	_, err = o.Rooms.LeaveVoice(conn.RoomID, chID, id, func(res app.VoiceLeave) {
		o.Registry.SetVoiceChannel(id, "")
		if disconnect {
			o.Router.Fanout(res.Remaining, core.UserLeftMsg{
				Type:         core.TypeUserLeft,
				ConnectionID: id,
				Scope:        core.ScopeVoice,
				ChannelID:    chID,
			})
		} else {
			o.Router.Fanout(res.Remaining, core.VoiceLeftMsg{
				Type:         core.TypeVoiceLeft,
				ChannelID:    chID,
				ConnectionID: id,
			})
		}
		if res.ChannelRemoved {
			o.channelRemoved(res.RoomMembers, conn.RoomID, chID)
		}
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRoomNotFound):
		o.Registry.ClearRoom(id, conn.RoomID)
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrChannelNotFound):
		o.Registry.SetVoiceChannel(id, "")
		return fmt.Errorf("registry has %s in voice %s: %w", id, chID, domain.ErrInconsistentState)
	}
	return err
}

// channelRemoved tells room members that an ad-hoc voice channel is gone.
func (o *Orchestrator) channelRemoved(to []domain.ConnID, roomID domain.RoomID, chID domain.ChannelID) {
	o.Router.Fanout(to, core.ChannelRemovedMsg{
		Type:      core.TypeChannelRemoved,
		RoomID:    roomID,
		ChannelID: chID,
	})
}

// signal forwards a handshake message to its target. Unknown targets are
// dropped without telling the sender.
func (o *Orchestrator) signal(id domain.ConnID, m core.Signal) {
	o.Router.RelayDirect(id, m.Target, core.SignalOut{
		Type:    m.Kind,
		Sender:  id,
		Payload: m.Payload,
	})
}

func (o *Orchestrator) screenShare(id domain.ConnID, m core.ScreenShare) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.VoiceChannelID == "" {
		return fmt.Errorf("screen share: %w", domain.ErrNotInVoice)
	}
	_, err = o.Router.RelayToVoiceChannel(id, conn.VoiceChannelID, core.ScreenShareMsg{
		Type:   core.TypeScreenShare,
		Sender: id,
		Active: m.Active,
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("cid", string(id)).Msg("screen share relay")
	}
	return nil
}
