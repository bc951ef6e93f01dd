package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("transport-secret"))
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestJoin_Envelope(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "alice", "name": "Alice", "exp": exp.Unix()})

	var gotAuth, gotPath string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"Joined room successfully","data":{"token":"` + token +
			`","url":"wss://rtc.example","room":{"id":"r1","name":"Standup","is_active":true,"participant_count":2}}}`))
	}).WithToken("access-1")

	cred, err := c.Join(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer access-1", gotAuth)
	assert.Equal(t, "/api/v1/rooms/r1/join", gotPath)
	assert.Equal(t, token, cred.Token)
	assert.Equal(t, "wss://rtc.example", cred.URL)
	assert.Equal(t, "Standup", cred.Room.Name)
	assert.Equal(t, int64(2), cred.Room.ParticipantCount)
	assert.Equal(t, "alice", cred.Identity)
	assert.Equal(t, "Alice", cred.Name)
	assert.True(t, exp.Equal(cred.ExpiresAt))
}

func TestJoin_UnwrappedBodyAndOpaqueToken(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"opaque","url":"wss://rtc.example"}`))
	})

	cred, err := c.Join(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "opaque", cred.Token)
	assert.Empty(t, cred.Identity)
	assert.True(t, cred.ExpiresAt.IsZero())
}

func TestJoin_MissingFields(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"url":"wss://rtc.example"}}`))
	})

	_, err := c.Join(context.Background(), "r1")
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"top level message", http.StatusBadRequest, `{"success":false,"message":"room is full"}`, "room is full"},
		{"error string", http.StatusBadRequest, `{"error":"room not found"}`, "room not found"},
		{"error object", http.StatusForbidden, `{"error":{"message":"not allowed"}}`, "not allowed"},
		{"data message wins", http.StatusBadRequest, `{"message":"outer","data":{"message":"inner"}}`, "inner"},
		{"data error message", http.StatusBadRequest, `{"data":{"error":{"message":"nested"}}}`, "nested"},
		{"no body", http.StatusBadGateway, ``, "HTTP 502: Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Join(context.Background(), "r1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.False(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestUnauthorized(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"User not authenticated"}`))
	})

	err := c.Leave(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLeave(t *testing.T) {
	var gotPath, gotMethod string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.Leave(context.Background(), "r1"))
	assert.Equal(t, "/api/v1/rooms/r1/leave", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestWithToken_DoesNotShareState(t *testing.T) {
	base := New("http://backend", 0)
	a := base.WithToken("a")
	b := base.WithToken("b")

	assert.Equal(t, "a", a.token)
	assert.Equal(t, "b", b.token)
	assert.Empty(t, base.token)
}

func TestMissingBaseURL(t *testing.T) {
	_, err := New("", 0).Join(context.Background(), "r1")
	assert.Error(t, err)
}
