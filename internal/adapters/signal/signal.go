// Package signal pushes session state to UI clients over WebSocket and
// accepts their commands.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Config struct {
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateInterval <= 0 {
		c.RateInterval = time.Second
	}
	return c
}

// SignalWSController fans session state out to every connected UI client.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	cfg     Config
	limiter *RateLimiter

	mu      sync.RWMutex
	clients map[string]*WsSignalConn

	joins conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, cfg Config) *SignalWSController {
	cfg = cfg.withDefaults()
	return &SignalWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		clients: make(map[string]*WsSignalConn),
	}
}

// Wait blocks until joins started by clients have returned. Call it after
// the orchestrator is closed so pending joins are cancelled.
func (ctl *SignalWSController) Wait() {
	ctl.joins.Wait()
}

// WsSignalConn is one UI client. It implements core.SignalConnection.
type WsSignalConn struct {
	id    string
	token string
	conn  *websocket.Conn
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

type stateMsg struct {
	Type  string    `json:"type"`
	State orch.View `json:"state"`
}

type noticeMsg struct {
	Type   string        `json:"type"`
	Notice domain.Notice `json:"notice"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PublishState sends v to every client. Clients that cannot keep up
// miss the frame; the next state supersedes it.
func (ctl *SignalWSController) PublishState(v orch.View) {
	ctl.broadcast(stateMsg{Type: "state", State: v})
}

func (ctl *SignalWSController) PublishNotice(n domain.Notice) {
	ctl.broadcast(noticeMsg{Type: "notice", Notice: n})
}

func (ctl *SignalWSController) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	for id, c := range ctl.clients {
		if err := c.TrySend(b); err != nil && !errors.Is(err, ErrClosed) {
			log.Warn().Err(err).Str("module", "signal").Str("client", id).Msg("frame dropped")
		}
	}
}

// Clients reports the number of connected UI clients.
func (ctl *SignalWSController) Clients() int {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return len(ctl.clients)
}

func (ctl *SignalWSController) register(c *WsSignalConn) {
	ctl.mu.Lock()
	old := ctl.clients[c.id]
	ctl.clients[c.id] = c
	ctl.mu.Unlock()
	if old != nil {
		log.Info().Str("module", "signal").Str("client", c.id).Msg("replacing previous connection")
		old.Close()
	}
}

func (ctl *SignalWSController) unregister(c *WsSignalConn) {
	ctl.mu.Lock()
	if ctl.clients[c.id] == c {
		delete(ctl.clients, c.id)
		ctl.limiter.Forget(c.id)
	}
	ctl.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. The client id and the backend
// access token come from the HTTP middleware.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", id).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:    id,
		token: c.GetString("access_token"),
		conn:  ws,
		send:  make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	ctl.register(conn)
	ctl.sendJSON(conn, stateMsg{Type: "state", State: ctl.Orch.View()})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
