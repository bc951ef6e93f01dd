package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	_writeWait      = 5 * time.Second
	_pongWait       = 2 * time.Minute
	_pingPeriod     = time.Minute
	_maxMessageSize = 4096
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(_pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", c.id).Msg("writePump ctx done")
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(_writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("client", c.id).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(_writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("client", c.id).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", c.id).Msg("readPump closing")
		ctl.unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(_maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(_pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(_pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("client", c.id).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}
	if !ctl.limiter.Allow(c.id) {
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "rate_limited"})
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, c, data)
	case "leave":
		ctl.handleLeave(ctx, c)
	case "toggle_mic", "toggle_camera", "switch_camera", "toggle_screen_share":
		ctl.handleDevice(ctx, c, orch.DeviceOp(env.Type))
	case "state":
		ctl.handleState(c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "unknown_type"})
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
