package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/voicehub/internal/app/orch"
	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("cid", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("cid", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(id)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the connection's lifecycle: when it returns the session is
// torn down exactly once.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(id)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(id)
		ctl.Limiter.Forget(id)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(id, c, data)
	}
}

func (ctl *SignalWSController) handleFrame(id domain.ConnID, c *WsSignalConn, data []byte) {
	msg, err := core.Decode(data)
	if err != nil {
		ctl.Orch.Metrics.Inc(metrics.InboundRejected)
		log.Debug().Err(err).Str("module", "signal").Str("cid", string(id)).Msg("bad frame")
		ctl.sendJSON(c, orch.ErrorReply(err))
		return
	}
	if _, ok := msg.(core.CreateRoom); ok && !ctl.Limiter.Allow(id) {
		ctl.Orch.Metrics.Inc(metrics.DropRateLimited)
		log.Warn().Str("module", "signal").Str("cid", string(id)).Msg("create-room rate limited")
		ctl.sendJSON(c, core.NewError(core.CodeRateLimited, "too many rooms created, try again later"))
		return
	}
	ctl.Orch.Handle(id, msg)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
