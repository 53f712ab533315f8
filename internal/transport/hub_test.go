package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// startFakeInstance runs a WebSocket server that echoes back a canned
// response for every request type, simulating a source/target instance.
func startFakeInstance(t *testing.T, responses map[string]any) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	connCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn

		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var req envelope
				require.NoError(t, json.Unmarshal(data, &req))

				respPayload, _ := json.Marshal(responses[req.Type])
				resp := envelope{ID: req.ID, Type: req.Type, Payload: respPayload}
				respData, _ := json.Marshal(resp)
				conn.WriteMessage(websocket.TextMessage, respData)
			}
		}()
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	<-connCh
	return server, clientConn
}

func TestHubExportPlatformRequestRoundTrip(t *testing.T) {
	server, clientConn := startFakeInstance(t, map[string]any{
		"ExportPlatformRequest": map[string]any{"success": true, "exportId": "E1"},
	})
	defer server.Close()

	hub := NewHub(DefaultConfig(), nil)
	hub.Attach(1, clientConn)
	client := NewClient(hub)

	result, err := client.ExportPlatformRequest(context.Background(), 1, 3, "player")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "E1", result.ExportID)
}

func TestHubUnknownInstanceReturnsError(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil)
	client := NewClient(hub)

	_, err := client.ExportPlatformRequest(context.Background(), 999, 1, "player")
	require.Error(t, err)
}

func TestHubCallTimesOutWhenNoResponse(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
		// Never responds.
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	<-connCh

	cfg := DefaultConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.RetryConfig.MaxAttempts = 1
	hub := NewHub(cfg, nil)
	hub.Attach(2, clientConn)
	client := NewClient(hub)

	_, err = client.ExportPlatformRequest(context.Background(), 2, 1, "player")
	require.Error(t, err)
}
