package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/session"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.CountdownDelay = 750 * time.Millisecond
	cfg.Session.Teams = []string{"North", "South"}
	cfg.WebSocket.SendBuffer = 16
	return &cfg
}

func TestGatewayConfig(t *testing.T) {
	gwCfg := gatewayConfig(testConfig())

	assert.Equal(t, 750*time.Millisecond, gwCfg.Session.CountdownDelay)
	assert.Equal(t, [2]session.Team{"North", "South"}, gwCfg.Session.Teams)
	assert.Equal(t, 16, gwCfg.Connection.SendBufferSize)
	assert.NotNil(t, gwCfg.Session.Clock)
}

func TestJetStreamConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NATS.URL = "nats://events:4222"
	cfg.NATS.SubjectPrefix = "skirmish.events"

	jsCfg := jetStreamConfig(cfg)
	assert.Equal(t, "nats://events:4222", jsCfg.URL)
	assert.Equal(t, "SESSION_EVENTS", jsCfg.StreamName)
	assert.Equal(t, "skirmish.events.GameStarted", jsCfg.Subject("GameStarted"))
}

func TestServerRoutes(t *testing.T) {
	services, err := setupServices(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(services.Close)

	server := httptest.NewServer(setupServer("0", services).Handler)
	t.Cleanup(server.Close)

	tests := []struct {
		method string
		path   string
		body   string
		want   string
	}{
		{http.MethodGet, "/health", "", "OK"},
		{http.MethodGet, "/health/ready", "", `"healthy":true`},
		{http.MethodGet, "/api/user", "", `"nickname":"TestUser"`},
		{http.MethodGet, "/api/user/icons", "", `[1,2,3]`},
		{http.MethodGet, "/api/ranking", "", `"success":true`},
		{http.MethodPost, "/api/match/join", `{}`, `"matched":false`},
		{http.MethodGet, "/api/match/status", "", `"roomId":"room-abc"`},
		{http.MethodPost, "/api/match/end", `{}`, `"success":true`},
		{http.MethodGet, "/ws/stats", "", `"phase":"EMPTY"`},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			var sb strings.Builder
			_, err = io.Copy(&sb, resp.Body)
			require.NoError(t, err)
			assert.Contains(t, sb.String(), tt.want)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	services, err := setupServices(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(services.Close)

	handler := setupServer("0", services).Handler

	req := httptest.NewRequest(http.MethodOptions, "/api/match/join", nil)
	req.Header.Set("Origin", "http://lobby.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupLoggingFallsBack(t *testing.T) {
	// unknown levels must not panic or disable logging
	setupLogging("chatty")
	setupLogging("info")
}
