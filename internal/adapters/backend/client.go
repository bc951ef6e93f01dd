// Package backend is the client of the room backend API. It implements
// core.CredentialSource.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 1 << 20

var ErrUnauthorized = errors.New("backend: unauthorized")

// APIError is a non-2xx answer of the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client talks to the room backend. The zero RequestTimeout means 30s.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration

	token  string
	logger zerolog.Logger
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		RequestTimeout: timeout,
		logger:         log.With().Str("module", "backend").Logger(),
	}
}

// WithToken returns a copy of c that authenticates as the holder of the
// access token. Each visit carries its own token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type joinData struct {
	Token string          `json:"token"`
	URL   string          `json:"url"`
	Room  domain.RoomInfo `json:"room"`
}

// Join requests a transport credential for room.
func (c *Client) Join(ctx context.Context, room domain.RoomID) (domain.Credential, error) {
	body, err := c.post(ctx, "/api/v1/rooms/"+url.PathEscape(string(room))+"/join")
	if err != nil {
		return domain.Credential{}, fmt.Errorf("join room %s: %w", room, err)
	}

	var data joinData
	if err := json.Unmarshal(unwrap(body), &data); err != nil {
		return domain.Credential{}, fmt.Errorf("decode join response: %w", err)
	}
	if data.Token == "" || data.URL == "" {
		return domain.Credential{}, errors.New("join response missing token or url")
	}

	cred := domain.Credential{Token: data.Token, URL: data.URL, Room: data.Room}
	if err := decodeClaims(&cred); err != nil {
		c.logger.Debug().Err(err).Str("room", string(room)).Msg("credential claims not readable")
	}
	return cred, nil
}

// Leave notifies the backend that the local participant left room.
func (c *Client) Leave(ctx context.Context, room domain.RoomID) error {
	if _, err := c.post(ctx, "/api/v1/rooms/"+url.PathEscape(string(room))+"/leave"); err != nil {
		return fmt.Errorf("leave room %s: %w", room, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp, body)}
	}
	return body, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// unwrap returns the data of a {success, data} envelope, or the body
// itself when the backend answered without one.
func unwrap(body []byte) []byte {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil || len(env.Data) == 0 {
		return body
	}
	return env.Data
}

type messageHolder struct {
	Message string `json:"message"`
}

// errorMessage extracts the backend's reason. data.message and
// data.error.message take precedence over message and error.
func errorMessage(resp *http.Response, body []byte) string {
	var env envelope
	msg := ""
	if err := json.Unmarshal(body, &env); err == nil {
		msg = env.Message
		if msg == "" {
			msg = nestedMessage(env.Error)
		}
		if len(env.Data) > 0 {
			var data struct {
				Message string          `json:"message"`
				Error   json.RawMessage `json:"error"`
			}
			if json.Unmarshal(env.Data, &data) == nil {
				if data.Message != "" {
					msg = data.Message
				} else if m := nestedMessage(data.Error); m != "" {
					msg = m
				}
			}
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return msg
}

// nestedMessage reads an error that is either a string or {message}.
func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var m messageHolder
	if json.Unmarshal(raw, &m) == nil {
		return m.Message
	}
	return ""
}

// decodeClaims fills identity, name and expiry from the token. The
// signature belongs to the transport and is not checked here.
func decodeClaims(cred *domain.Credential) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.Token, claims); err != nil {
		return err
	}
	if sub, err := claims.GetSubject(); err == nil {
		cred.Identity = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cred.ExpiresAt = exp.Time
	}
	if name, ok := claims["name"].(string); ok {
		cred.Name = name
	}
	return nil
}
