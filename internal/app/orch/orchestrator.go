package orch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// connState serializes the lifecycle transitions of one connection.
type connState struct {
	mu     sync.Mutex
	closed bool
}

// Orchestrator is the session lifecycle manager. It owns no membership state
// itself; it sequences Registry, Directory and Router for each transition.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Directory
	Router   *app.Router
	Metrics  *metrics.Metrics

	mu    sync.Mutex
	conns map[domain.ConnID]*connState
}

func New(reg *app.Registry, rooms *app.Directory, router *app.Router, m *metrics.Metrics) *Orchestrator {
	if m == nil {
		m = metrics.New()
	}
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Router:   router,
		Metrics:  m,
		conns:    make(map[domain.ConnID]*connState),
	}
	router.OnSlow = o.Kick
	return o
}

// OnConnect registers a new session. A duplicate id is an internal fault and
// the caller must close the transport.
func (o *Orchestrator) OnConnect(id domain.ConnID, user domain.User, sig core.SignalConnection) error {
	if _, err := o.Registry.Register(id, user, sig); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("cid", string(id)).Msg("connect rejected")
		return err
	}
	o.mu.Lock()
	o.conns[id] = &connState{}
	o.mu.Unlock()
	o.Metrics.Inc(metrics.ConnectionsOpened)
	return nil
}

func (o *Orchestrator) state(id domain.ConnID) *connState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[id]
}

// Handle dispatches one inbound message. Messages for unknown or already
// disconnected connections are ignored.
func (o *Orchestrator) Handle(id domain.ConnID, msg core.Inbound) {
	st := o.state(id)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	o.Metrics.Inc(metrics.InboundMessages)

	var err error
	switch m := msg.(type) {
	case core.CreateRoom:
		err = o.createRoom(id, m)
	case core.JoinRoom:
		err = o.joinRoom(id, m)
	case core.LeaveRoom:
		err = o.leaveRoom(id, false)
	case core.DeleteRoom:
		err = o.deleteRoom(id)
	case core.CreateChannel:
		err = o.createChannel(id, m)
	case core.JoinVoice:
		err = o.joinVoice(id, m)
	case core.LeaveVoice:
		err = o.leaveVoice(id, false)
	case core.Signal:
		o.signal(id, m)
	case core.ChatMessage:
		err = o.chat(id, m)
	case core.ScreenShare:
		err = o.screenShare(id, m)
	case core.Rename:
		err = o.rename(id, m)
	case core.WhoAmI:
		err = o.whoAmI(id)
	case core.Ping:
		o.Router.Send(id, core.PongMsg{Type: core.TypePong})
	default:
		err = fmt.Errorf("%w: %T", core.ErrUnknownType, msg)
	}
	if err != nil {
		o.fail(id, st, err)
	}
}

// fail turns a transition error into a reply to the requester. Consistency
// faults disconnect the offending connection instead.
func (o *Orchestrator) fail(id domain.ConnID, st *connState, err error) {
	if errors.Is(err, domain.ErrInconsistentState) || errors.Is(err, domain.ErrDuplicateConnection) {
		log.Error().Err(err).Str("module", "orch").Str("cid", string(id)).Msg("internal consistency fault, disconnecting")
		if sig, ok := o.Registry.Signal(id); ok {
			sig.Close()
		}
		o.disconnectLocked(id, st)
		return
	}
	o.Metrics.Inc(metrics.InboundRejected)
	log.Debug().Err(err).Str("module", "orch").Str("cid", string(id)).Msg("request rejected")
	o.Router.Send(id, ErrorReply(err))
}

// ErrorReply maps an error onto the wire error envelope.
func ErrorReply(err error) core.ErrorMsg {
	switch {
	case errors.Is(err, core.ErrBadPayload):
		return core.NewError(core.CodeBadPayload, err.Error())
	case errors.Is(err, core.ErrUnknownType):
		return core.NewError(core.CodeUnknownType, err.Error())
	case errors.Is(err, domain.ErrNotInRoom):
		return core.NewError(core.CodeNotInRoom, "not in room")
	case errors.Is(err, domain.ErrNotInVoice):
		return core.NewError(core.CodeNotInVoice, "not in a voice channel")
	case errors.Is(err, domain.ErrNotOwner):
		return core.NewError(core.CodeNotOwner, "only the room owner can do that")
	case errors.Is(err, domain.ErrNotVoiceChannel), errors.Is(err, domain.ErrInvalidChannelKind):
		return core.NewError(core.CodeNotVoiceChannel, err.Error())
	case errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrRoomNameTooLong):
		return core.NewError(core.CodeInvalidName, err.Error())
	}
	return core.NewError(core.CodeInternal, "internal error")
}

// OnDisconnect tears the connection down: voice first, then room, then the
// registry entry. It runs at most once per connection.
func (o *Orchestrator) OnDisconnect(id domain.ConnID) {
	st := o.state(id)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	o.disconnectLocked(id, st)
}

func (o *Orchestrator) disconnectLocked(id domain.ConnID, st *connState) {
	if st.closed {
		return
	}
	st.closed = true
	o.Registry.MarkDisconnected(id)

	if conn, err := o.Registry.Lookup(id); err == nil {
		if conn.VoiceChannelID != "" {
			_ = o.leaveVoice(id, true)
		}
		if conn.RoomID != "" {
			_ = o.leaveRoom(id, true)
		}
	}
	o.Registry.Unregister(id)

	o.mu.Lock()
	delete(o.conns, id)
	o.mu.Unlock()
	o.Metrics.Inc(metrics.ConnectionsClosed)
	log.Info().Str("module", "orch").Str("cid", string(id)).Msg("disconnected")
}

// Kick closes the transport of a connection and schedules its disconnect.
// It never blocks, so it is safe to call from a fan-out under a room lock.
func (o *Orchestrator) Kick(id domain.ConnID) {
	if sig, ok := o.Registry.Signal(id); ok {
		sig.Close()
	}
	o.Metrics.Inc(metrics.ConnectionsKicked)
	go o.OnDisconnect(id)
}
