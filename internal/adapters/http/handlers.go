package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/VoiceRoom/internal/adapters/backend"
	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type TokenRequest struct {
	Token string `json:"token"`
}

// ErrorResponse carries the failure and the state it left behind.
type ErrorResponse struct {
	Error string     `json:"error"`
	State *orch.View `json:"state,omitempty"`
}

type handlers struct {
	orch *orch.Orchestrator
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// storeToken keeps the backend access token in the cookie session. An
// empty token forgets it.
func (h *handlers) storeToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid token"})
		return
	}
	s := sessions.Default(c)
	if req.Token == "" {
		s.Delete(accessTokenKey)
	} else {
		s.Set(accessTokenKey, req.Token)
	}
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "session not saved"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) join(c *gin.Context) {
	roomID, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	view, err := h.orch.Join(c.Request.Context(), roomID, c.GetString(accessTokenKey))
	if err != nil {
		c.JSON(statusOf(err), ErrorResponse{Error: err.Error(), State: &view})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) leave(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Leave(c.Request.Context()))
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.View())
}

func (h *handlers) device(op orch.DeviceOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.orch.Device(c.Request.Context(), op)
		view := h.orch.View()
		if err != nil {
			c.JSON(statusOf(err), ErrorResponse{Error: err.Error(), State: &view})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrOverconstrained):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrJoinInProgress),
		errors.Is(err, core.ErrAlreadyJoined),
		errors.Is(err, core.ErrLeftDuringJoin),
		errors.Is(err, core.ErrDeviceBusy),
		errors.Is(err, core.ErrCameraOff),
		errors.Is(err, core.ErrNotConnected),
		errors.Is(err, core.ErrAlreadySharing):
		return http.StatusConflict
	case errors.Is(err, orch.ErrUnknownOp):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
