package signal

import (
	"context"

	"github.com/dkeye/VoiceRoom/internal/app/orch"
)

// handleDevice runs a device control. Failures already surface as notices;
// the caller additionally gets the error.
func (ctl *SignalWSController) handleDevice(ctx context.Context, conn *WsSignalConn, op orch.DeviceOp) {
	if err := ctl.Orch.Device(ctx, op); err != nil {
		ctl.sendJSON(conn, errorMsg{Type: "error", Error: err.Error()})
	}
}
