package http

import (
	"context"
	"strings"

	"github.com/dkeye/VoiceRoom/internal/adapters/signal"
	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/dkeye/VoiceRoom/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const accessTokenKey = "access_token"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// AccessTokenMiddleware exposes the backend access token of the caller.
// A bearer header wins over the token stored in the cookie session.
func AccessTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			c.Set(accessTokenKey, strings.TrimPrefix(h, "Bearer "))
		} else if v, ok := sessions.Default(c).Get(accessTokenKey).(string); ok {
			c.Set(accessTokenKey, v)
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceRoomSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(AccessTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{orch: o}
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/auth/token", h.storeToken)
	api.POST("/rooms/:id/join", h.join)

	sess := api.Group("/session")
	sess.GET("", h.state)
	sess.POST("/leave", h.leave)
	sess.POST("/mic/toggle", h.device(orch.OpToggleMic))
	sess.POST("/camera/toggle", h.device(orch.OpToggleCamera))
	sess.POST("/camera/switch", h.device(orch.OpSwitchCamera))
	sess.POST("/screen/toggle", h.device(orch.OpToggleScreenShare))

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
