package signal

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// handleState answers with the current view to the asking client only.
func (ctl *SignalWSController) handleState(conn *WsSignalConn) {
	ctl.sendJSON(conn, stateMsg{Type: "state", State: ctl.Orch.View()})
}
