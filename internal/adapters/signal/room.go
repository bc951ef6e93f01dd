package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, conn *WsSignalConn, data []byte) {
	type joinPayload struct {
		Type  string `json:"type"`
		Room  string `json:"room"`
		Token string `json:"token,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}
	roomID, err := domain.ParseRoomID(p.Room)
	if err != nil {
		ctl.sendJSON(conn, errorMsg{Type: "error", Error: err.Error()})
		return
	}
	token := p.Token
	if token == "" {
		token = conn.token
	}

	log.Info().Str("module", "signal").Str("client", conn.id).Str("room", string(roomID)).Msg("join")
	// The join runs off the read pump so a leave from the same client can
	// cancel it. State and notices reach every client through the session
	// observers; only the failure is answered here.
	ctl.joins.Go(func() {
		if _, err := ctl.Orch.Join(ctx, roomID, token); err != nil {
			ctl.sendJSON(conn, errorMsg{Type: "error", Error: err.Error()})
		}
	})
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("client", conn.id).Msg("leave")
	ctl.sendJSON(conn, stateMsg{Type: "state", State: ctl.Orch.Leave(ctx)})
}
