// Package devbackend is a development room backend. It issues LiveKit
// access tokens for rooms kept in memory.
package devbackend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"
)

type Config struct {
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	TokenTTL         time.Duration
	// UserSecret verifies HS256 user access tokens. Without it the bearer
	// token itself is the user id.
	UserSecret string
}

type JoinRoomResponse struct {
	Token string          `json:"token"`
	URL   string          `json:"url"`
	Room  domain.RoomInfo `json:"room"`
}

type Server struct {
	cfg   Config
	rooms *Rooms
}

func NewServer(cfg Config, rooms *Rooms) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Server{cfg: cfg, rooms: rooms}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.POST("/auth/dev-token", s.devToken)

	rooms := v1.Group("/rooms", s.authMiddleware())
	rooms.GET("/:id", s.getRoom)
	rooms.POST("/:id/join", s.joinRoom)
	rooms.POST("/:id/leave", s.leaveRoom)
	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			unauthorized(c, "User not authenticated")
			c.Abort()
			return
		}
		userID, err := s.userOf(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			unauthorized(c, err.Error())
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func (s *Server) userOf(token string) (string, error) {
	if token == "" {
		return "", errors.New("User not authenticated")
	}
	if s.cfg.UserSecret == "" {
		return token, nil
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.UserSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("token expired")
		}
		return "", errors.New("invalid token")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token")
	}
	return sub, nil
}

// devToken mints a user access token. Only available with a UserSecret.
func (s *Server) devToken(c *gin.Context) {
	var req struct {
		User string `json:"user"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.User == "" {
		badRequest(c, "user is required")
		return
	}
	if s.cfg.UserSecret == "" {
		success(c, http.StatusOK, "Token issued", gin.H{"access_token": req.User})
		return
	}
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.User,
		"iat": now.Unix(),
		"exp": now.Add(s.cfg.TokenTTL).Unix(),
	}).SignedString([]byte(s.cfg.UserSecret))
	if err != nil {
		failure(c, http.StatusInternalServerError, "failed to generate token")
		return
	}
	success(c, http.StatusOK, "Token issued", gin.H{"access_token": token})
}

func (s *Server) getRoom(c *gin.Context) {
	info, err := s.rooms.Get(c.Param("id"))
	if err != nil {
		failure(c, http.StatusNotFound, err.Error())
		return
	}
	success(c, http.StatusOK, "", info)
}

// joinRoom handles joining a room and getting a LiveKit token
// POST /api/v1/rooms/:id/join
func (s *Server) joinRoom(c *gin.Context) {
	userID := c.GetString("userID")
	roomID, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	info, err := s.rooms.Join(string(roomID), userID)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	at := auth.NewAccessToken(s.cfg.LiveKitAPIKey, s.cfg.LiveKitAPISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     string(roomID),
	}
	at.SetVideoGrant(grant).
		SetIdentity(userID).
		SetName(userID).
		SetValidFor(s.cfg.TokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		log.Error().Err(err).Str("module", "devbackend").Msg("token generation")
		failure(c, http.StatusInternalServerError, "failed to generate token")
		return
	}

	log.Info().Str("module", "devbackend").Str("room", string(roomID)).Str("user", userID).Msg("joined")
	success(c, http.StatusOK, "Joined room successfully", JoinRoomResponse{
		Token: token,
		URL:   s.cfg.LiveKitURL,
		Room:  info,
	})
}

// leaveRoom handles leaving a room
// POST /api/v1/rooms/:id/leave
func (s *Server) leaveRoom(c *gin.Context) {
	userID := c.GetString("userID")
	if err := s.rooms.Leave(c.Param("id"), userID); err != nil {
		badRequest(c, err.Error())
		return
	}
	log.Info().Str("module", "devbackend").Str("room", c.Param("id")).Str("user", userID).Msg("left")
	success(c, http.StatusOK, "Left room successfully", nil)
}
