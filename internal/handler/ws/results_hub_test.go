package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func startHub(t *testing.T) (*ResultsHub, string) {
	t.Helper()
	hub := NewResultsHub(HubConfig{SendBuffer: 4, PingInterval: time.Second}, nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/results"
}

func TestHubBroadcastsResults(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), &models.CoordinationResult{ID: "r-1", CoordinationMode: models.ModeAdaptive}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.CoordinationResult
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "r-1", got.ID)
	assert.Equal(t, models.ModeAdaptive, got.CoordinationMode)
}

func TestHubDropsClosedSubscribers(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendWithoutSubscribers(t *testing.T) {
	hub := NewResultsHub(HubConfig{}, nil)
	assert.NoError(t, hub.Send(context.Background(), &models.CoordinationResult{ID: "r-1"}))
	assert.Equal(t, "websocket", hub.Name())
}
