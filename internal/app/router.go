package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Router is a pure addressed-message bus. It never looks inside payloads and
// never blocks: each target's transport absorbs its own backpressure.
type Router struct {
	reg     *Registry
	dir     *Directory
	policy  Policy
	metrics *metrics.Metrics

	// OnSlow is called for receivers the policy decided to kick. It may run
	// under a room lock and must not block.
	OnSlow func(domain.ConnID)
}

func NewRouter(reg *Registry, dir *Directory, policy Policy, m *metrics.Metrics) *Router {
	if policy == nil {
		policy = DropPolicy{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Router{reg: reg, dir: dir, policy: policy, metrics: m}
}

func encode(msg any) (core.Frame, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("marshal outbound")
		return nil, false
	}
	return b, true
}

// deliver hands one frame to the target's queue. Unknown targets are dropped.
func (r *Router) deliver(to domain.ConnID, f core.Frame) bool {
	sig, ok := r.reg.Signal(to)
	if !ok {
		r.metrics.Inc(metrics.DropNoTarget)
		return false
	}
	err := sig.TrySend(f)
	switch {
	case err == nil:
		r.metrics.Inc(metrics.FramesDelivered)
		return true
	case errors.Is(err, core.ErrBackpressure):
		r.metrics.Inc(metrics.DropBackpressure)
		action := r.policy.OnBackpressure(to)
		log.Warn().Str("module", "app.router").Str("cid", string(to)).Stringer("action", action).Msg("receiver backpressure")
		if action == KickMember && r.OnSlow != nil {
			r.OnSlow(to)
		}
	default:
		r.metrics.Inc(metrics.DropClosed)
	}
	return false
}

// Send delivers msg to a single connection.
func (r *Router) Send(to domain.ConnID, msg any) bool {
	f, ok := encode(msg)
	if !ok {
		return false
	}
	return r.deliver(to, f)
}

// Fanout delivers msg to every target and reports how many accepted it.
func (r *Router) Fanout(targets []domain.ConnID, msg any) int {
	if len(targets) == 0 {
		return 0
	}
	f, ok := encode(msg)
	if !ok {
		return 0
	}
	n := 0
	for _, to := range targets {
		if r.deliver(to, f) {
			n++
		}
	}
	return n
}

// RelayDirect forwards a point-to-point message. A missing target is an
// expected race (it disconnected mid-handshake) and is dropped silently.
func (r *Router) RelayDirect(sender, target domain.ConnID, msg any) bool {
	if target == sender {
		return false
	}
	ok := r.Send(target, msg)
	if ok {
		r.metrics.Inc(metrics.RelayedDirect)
	} else {
		log.Debug().Str("module", "app.router").Str("from", string(sender)).Str("to", string(target)).Msg("direct relay dropped")
	}
	return ok
}

// RelayToRoom fans msg out to the room's members, taken under the room lock.
func (r *Router) RelayToRoom(sender domain.ConnID, roomID domain.RoomID, msg any, excludeSender bool) (int, error) {
	f, ok := encode(msg)
	if !ok {
		return 0, nil
	}
	n := 0
	err := r.dir.WithMembers(roomID, func(members []domain.ConnID) {
		for _, to := range members {
			if excludeSender && to == sender {
				continue
			}
			if r.deliver(to, f) {
				n++
			}
		}
	})
	if err == nil {
		r.metrics.Add(metrics.RelayedRoom, uint64(n))
	}
	return n, err
}

// RelayToVoiceChannel fans msg out to the voice channel, excluding the sender.
func (r *Router) RelayToVoiceChannel(sender domain.ConnID, channelID domain.ChannelID, msg any) (int, error) {
	f, ok := encode(msg)
	if !ok {
		return 0, nil
	}
	n := 0
	err := r.dir.WithVoiceMembers(channelID, func(_ domain.RoomID, members []domain.ConnID) {
		for _, to := range members {
			if to == sender {
				continue
			}
			if r.deliver(to, f) {
				n++
			}
		}
	})
	if err == nil {
		r.metrics.Add(metrics.RelayedVoice, uint64(n))
	}
	return n, err
}
