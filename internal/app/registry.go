package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	conn   domain.Connection
	signal core.SignalConnection
}

// Registry maps connection ids to their session metadata and transport.
// It is the only owner of domain.Connection values; everyone else keeps ids.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*sessionEntry),
	}
}

func (r *Registry) Register(id domain.ConnID, user domain.User, sig core.SignalConnection) (domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return domain.Connection{}, fmt.Errorf("register %s: %w", id, domain.ErrDuplicateConnection)
	}
	e := &sessionEntry{
		conn:   domain.Connection{ID: id, User: user, State: domain.StateConnected},
		signal: sig,
	}
	r.sessions[id] = e
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("user", string(user.ID)).Msg("registered connection")
	return e.conn, nil
}

func (r *Registry) Lookup(id domain.ConnID) (domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	return e.conn, nil
}

func (r *Registry) Contains(id domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Signal returns the transport of a registered connection.
func (r *Registry) Signal(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok && e.signal != nil {
		return e.signal, true
	}
	return nil, false
}

// MarkDisconnected moves the entry to StateDisconnected. Later room or voice
// updates for it are refused, so a teardown in progress cannot be undone by a
// late commit.
func (r *Registry) MarkDisconnected(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.conn.State = domain.StateDisconnected
	return true
}

// Unregister removes the entry. Removing an unknown id is a no-op.
func (r *Registry) Unregister(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("unregistered connection")
	return true
}

// SetRoom records the current room; an empty id clears room and voice channel.
func (r *Registry) SetRoom(id domain.ConnID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	switch {
	case e.conn.State == domain.StateDisconnected:
		if roomID != "" {
			return false
		}
		e.conn.RoomID = ""
		e.conn.VoiceChannelID = ""
	case roomID == "":
		e.conn.RoomID = ""
		e.conn.VoiceChannelID = ""
		e.conn.State = domain.StateConnected
	default:
		e.conn.RoomID = roomID
		e.conn.State = domain.StateInRoom
	}
	log.Debug().Str("module", "app.registry").Str("cid", string(id)).Str("room", string(roomID)).Msg("updated room")
	return true
}

// ClearRoom clears room and voice only if the connection is still in roomID.
func (r *Registry) ClearRoom(id domain.ConnID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.conn.RoomID != roomID {
		return false
	}
	e.conn.RoomID = ""
	e.conn.VoiceChannelID = ""
	if e.conn.State != domain.StateDisconnected {
		e.conn.State = domain.StateConnected
	}
	return true
}

// SetVoiceChannel records the current voice channel; an empty id drops back to InRoom.
func (r *Registry) SetVoiceChannel(id domain.ConnID, channelID domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	if e.conn.State == domain.StateDisconnected {
		if channelID != "" {
			return false
		}
		e.conn.VoiceChannelID = ""
		return true
	}
	e.conn.VoiceChannelID = channelID
	switch {
	case channelID != "":
		e.conn.State = domain.StateInVoice
	case e.conn.RoomID != "":
		e.conn.State = domain.StateInRoom
	default:
		e.conn.State = domain.StateConnected
	}
	log.Debug().Str("module", "app.registry").Str("cid", string(id)).Str("voice", string(channelID)).Msg("updated voice channel")
	return true
}

func (r *Registry) Rename(id domain.ConnID, name string) (domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	if err := e.conn.User.SetUsername(name); err != nil {
		return domain.Connection{}, err
	}
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("username", e.conn.User.Username).Msg("updated username")
	return e.conn, nil
}

// Members resolves ids to presence views, skipping ids that are gone.
func (r *Registry) Members(ids []domain.ConnID) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.sessions[id]; ok {
			out = append(out, e.conn.Member())
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
